package aggregate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/mirrornode/pkg/contracts"
)

var ErrInvalidRule = errors.New("aggregate: invalid consensus rule")

// Named rules accepted by FromRule besides raw CEL.
const (
	RuleMajority      = "majority"
	RuleSupermajority = "supermajority"
	RuleUnanimous     = "unanimous"
)

var namedRules = map[string]string{
	RuleSupermajority: "total > 0 && ok * 3 >= total * 2",
	RuleUnanimous:     "total > 0 && ok == total",
}

// CELStrategy decides success with a boolean CEL expression over the integer
// variables ok, degraded, error, unavailable and total.
type CELStrategy struct {
	expr  string
	prg   cel.Program
	Merge MergeFunc
}

// NewCELStrategy compiles expr. It must type-check to bool.
func NewCELStrategy(expr string, merge MergeFunc) (*CELStrategy, error) {
	env, err := cel.NewEnv(
		cel.Variable("ok", cel.IntType),
		cel.Variable("degraded", cel.IntType),
		cel.Variable("error", cel.IntType),
		cel.Variable("unavailable", cel.IntType),
		cel.Variable("total", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: compile: %w", ErrInvalidRule, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: %q yields %s, want bool", ErrInvalidRule, expr, ast.OutputType())
	}
	prg, err := env.Program(ast, cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("%w: program: %w", ErrInvalidRule, err)
	}
	return &CELStrategy{expr: expr, prg: prg, Merge: merge}, nil
}

func (s *CELStrategy) Expr() string { return s.expr }

// Aggregate evaluates the rule. An evaluation error is a failed decision.
func (s *CELStrategy) Aggregate(responses []*contracts.AdapterResponse) Decision {
	d, ok := Tally(responses)
	out, _, err := s.prg.Eval(map[string]any{
		"ok":          int64(d.OK),
		"degraded":    int64(d.Degraded),
		"error":       int64(d.Error),
		"unavailable": int64(d.Unavailable),
		"total":       int64(d.Total),
	})
	if err != nil {
		return Decision{Detail: d}
	}
	success, _ := out.Value().(bool)
	return decide(success, d, ok, s.Merge)
}

// FromRule resolves a configured rule: empty or "majority" is Majority, the
// other named rules and any other text are CEL.
func FromRule(rule string) (Strategy, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" || strings.EqualFold(rule, RuleMajority) {
		return Majority{}, nil
	}
	if expr, ok := namedRules[strings.ToLower(rule)]; ok {
		rule = expr
	}
	return NewCELStrategy(rule, nil)
}

package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ReflectProvider is the local theia oracle. It needs no credentials and
// answers deterministically, so the lattice always has one reachable voter.
type ReflectProvider struct {
	model string
}

func NewReflectProvider(model string) *ReflectProvider {
	if model == "" {
		model = "theia-reflect"
	}
	return &ReflectProvider{model: model}
}

func (r *ReflectProvider) Concurrent() bool { return true }

func (r *ReflectProvider) DoInvoke(ctx context.Context, prompt string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(prompt))
	return map[string]any{
		"content":     "[THEIA] reflection " + hex.EncodeToString(sum[:8]),
		"model":       r.model,
		"tokens_used": len(strings.Fields(prompt)),
	}, nil
}

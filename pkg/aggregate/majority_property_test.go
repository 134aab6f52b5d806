//go:build property
// +build property

package aggregate

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/mirrornode/pkg/contracts"
)

// Property: Majority succeeds exactly when 2*ok > total, and the agreed
// payload then belongs to the smallest ok node id.
func TestMajorityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	statuses := []contracts.AdapterStatus{
		contracts.StatusOK,
		contracts.StatusDegraded,
		contracts.StatusError,
		contracts.StatusUnavailable,
	}

	properties.Property("success iff strict majority ok", prop.ForAll(
		func(picks []int) bool {
			responses := make([]*contracts.AdapterResponse, len(picks))
			okCount := 0
			lowest := ""
			for i, p := range picks {
				status := statuses[p]
				node := fmt.Sprintf("node-%03d", len(picks)-i)
				if status == contracts.StatusOK {
					okCount++
					if lowest == "" || node < lowest {
						lowest = node
					}
					responses[i] = contracts.MustAdapterResponse(status, node, map[string]any{"node": node}, nil, nil)
					continue
				}
				responses[i] = contracts.MustAdapterResponse(status, node, nil, &contracts.AdapterError{Code: contracts.ErrorUnknown}, nil)
			}

			d := Majority{}.Aggregate(responses)
			if d.Success != (2*okCount > len(picks)) {
				return false
			}
			if d.Success && d.AgreedPayload["node"] != lowest {
				return false
			}
			return d.Detail.Total == len(picks)
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}

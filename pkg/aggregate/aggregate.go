// Package aggregate folds adapter responses into a consensus decision.
package aggregate

import (
	"sort"

	"github.com/Mindburn-Labs/mirrornode/pkg/contracts"
)

// Detail is the tally behind a Decision.
type Detail struct {
	OK          int    `json:"ok"`
	Degraded    int    `json:"degraded"`
	Error       int    `json:"error"`
	Unavailable int    `json:"unavailable"`
	Total       int    `json:"total"`
	Winner      string `json:"winner,omitempty"`
}

// Decision is the outcome of aggregation. AgreedPayload is set only on success.
type Decision struct {
	Success       bool           `json:"success"`
	AgreedPayload map[string]any `json:"agreed_payload,omitempty"`
	Detail        Detail         `json:"detail"`
}

// Strategy decides whether a set of responses constitutes consensus.
type Strategy interface {
	Aggregate(responses []*contracts.AdapterResponse) Decision
}

// MergeFunc picks the agreed payload from the ok responses, which are never
// empty when it is called. It returns the winning node id and its payload.
type MergeFunc func(ok []*contracts.AdapterResponse) (winner string, payload map[string]any)

// LowestNodeID takes the payload of the ok response with the lexicographically
// smallest node id.
func LowestNodeID(ok []*contracts.AdapterResponse) (string, map[string]any) {
	best := ok[0]
	for _, r := range ok[1:] {
		if r.NodeID() < best.NodeID() {
			best = r
		}
	}
	return best.NodeID(), best.Payload()
}

// Tally counts responses by status. A nil response counts as unavailable.
func Tally(responses []*contracts.AdapterResponse) (Detail, []*contracts.AdapterResponse) {
	var d Detail
	var ok []*contracts.AdapterResponse
	for _, r := range responses {
		d.Total++
		if r == nil {
			d.Unavailable++
			continue
		}
		switch r.Status() {
		case contracts.StatusOK:
			d.OK++
			ok = append(ok, r)
		case contracts.StatusDegraded:
			d.Degraded++
		case contracts.StatusError:
			d.Error++
		default:
			d.Unavailable++
		}
	}
	return d, ok
}

// Values returns responses of a vote map ordered by node id.
func Values(votes map[string]*contracts.AdapterResponse) []*contracts.AdapterResponse {
	names := make([]string, 0, len(votes))
	for name := range votes {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*contracts.AdapterResponse, len(names))
	for i, name := range names {
		out[i] = votes[name]
	}
	return out
}

// Majority succeeds when strictly more than half of all responses are ok.
// Every other status is an abstention that still counts toward the total.
type Majority struct {
	Merge MergeFunc
}

func (m Majority) Aggregate(responses []*contracts.AdapterResponse) Decision {
	d, ok := Tally(responses)
	return decide(2*d.OK > d.Total, d, ok, m.Merge)
}

func decide(success bool, d Detail, ok []*contracts.AdapterResponse, merge MergeFunc) Decision {
	if !success || len(ok) == 0 {
		return Decision{Detail: d}
	}
	if merge == nil {
		merge = LowestNodeID
	}
	winner, payload := merge(ok)
	d.Winner = winner
	return Decision{Success: true, AgreedPayload: payload, Detail: d}
}

package contracts

import (
	"sort"
	"time"
)

// ConsensusResult is the outcome of one consensus request across the adapter pool.
type ConsensusResult struct {
	ConsensusReached bool                        `json:"consensus_reached"`
	Votes            map[string]*AdapterResponse `json:"votes"`
	AgreedPayload    map[string]any              `json:"agreed_payload"`
	TraceID          string                      `json:"trace_id"`
	Timestamp        time.Time                   `json:"timestamp"`
}

// Voters returns the node ids that voted, sorted by name.
func (c *ConsensusResult) Voters() []string {
	names := make([]string, 0, len(c.Votes))
	for name := range c.Votes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

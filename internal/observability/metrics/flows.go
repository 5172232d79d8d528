package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type flowKey struct {
	kind    string
	outcome string
}

type flowCollector struct {
	mu       sync.Mutex
	outcomes map[flowKey]uint64
}

var flows = &flowCollector{outcomes: make(map[flowKey]uint64)}

// ObserveFlow records the terminal outcome of a custody flow.
func ObserveFlow(kind, outcome string) {
	flows.mu.Lock()
	flows.outcomes[flowKey{kind: kind, outcome: outcome}]++
	flows.mu.Unlock()
}

func (c *flowCollector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	type metric struct {
		flowKey
		value uint64
	}
	entries := make([]metric, 0, len(c.outcomes))
	for key, value := range c.outcomes {
		entries = append(entries, metric{flowKey: key, value: value})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].kind == entries[j].kind {
			return entries[i].outcome < entries[j].outcome
		}
		return entries[i].kind < entries[j].kind
	})

	var builder strings.Builder
	builder.WriteString("# HELP safeguard_flows_total Total number of custody flows by terminal outcome.\n")
	builder.WriteString("# TYPE safeguard_flows_total counter\n")
	for _, entry := range entries {
		builder.WriteString(fmt.Sprintf("safeguard_flows_total{kind=\"%s\",outcome=\"%s\"} %d\n",
			escape(entry.kind), escape(entry.outcome), entry.value))
	}
	return builder.String()
}

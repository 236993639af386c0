package engine

// RuleStats are the counters of one pattern rule.
//
// Probes counts data deltas offered to the rule, Hits those that changed
// its rows and Misses the rest. ExpansionsIn counts candidate rows joined
// against the rule's cache and ExpansionsOut the rows those joins produced.
type RuleStats struct {
	Pattern       string `json:"pattern"`
	Repeating     bool   `json:"repeating"`
	Probes        int64  `json:"probes"`
	Hits          int64  `json:"hits"`
	Misses        int64  `json:"misses"`
	ExpansionsIn  int64  `json:"expansions_in"`
	ExpansionsOut int64  `json:"expansions_out"`
	CacheSize     int    `json:"cache_size"`
}

// selectivity is the observed output/input ratio of joins against the rule.
// Rules never joined against report 1.
func (s *RuleStats) selectivity() float64 {
	if s.ExpansionsIn == 0 {
		return 1
	}
	return float64(s.ExpansionsOut) / float64(s.ExpansionsIn)
}

// Stats is a snapshot of a query's counters.
//
// Each rule network owns its own counters; nothing is shared between
// queries.
type Stats struct {
	QueryID  string      `json:"query_id"`
	Deltas   int64       `json:"deltas"`
	Ignored  int64       `json:"ignored"`
	RowKind  string      `json:"row_kind"`
	Bindings int         `json:"bindings"`
	Terms    int         `json:"terms"`
	Results  int         `json:"results"`
	Rules    []RuleStats `json:"rules"`
}

package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sparqlflow/internal/ir"
)

// Scenario defines a conformance test scenario.
// Scenarios drive a store through a sequence of additions and removals and
// check the changes every query reports, the final results, and agreement
// with a from-scratch reference evaluation.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Queries lists paths to CUE query files to compile.
	// Paths are relative to the scenario file location.
	Queries []string `yaml:"queries,omitempty"`

	// Inline is CUE source compiled after Queries. Useful for small
	// scenarios that do not need a separate file.
	Inline string `yaml:"inline,omitempty"`

	// Setup lists quads stored before the queries subscribe.
	Setup []QuadSpec `yaml:"setup,omitempty"`

	// Steps are applied in order once every query is subscribed.
	Steps []Step `yaml:"steps"`

	// CheckReference compares every query with the reference evaluator
	// after each step.
	CheckReference bool `yaml:"check_reference,omitempty"`

	// Assertions validate the final results.
	// Supported types: results, contains, absent, count, matches_reference
	Assertions []Assertion `yaml:"assertions"`
}

// QuadSpec is a quad as [subject, predicate, object] or
// [subject, predicate, object, graph] in the notation of ir.ParseTerm.
type QuadSpec []string

// Quad parses the terms into a quad.
func (s QuadSpec) Quad() (ir.Quad, error) {
	if len(s) != 3 && len(s) != 4 {
		return ir.Quad{}, fmt.Errorf("quad needs 3 or 4 terms, got %d", len(s))
	}
	terms := make([]ir.Term, len(s))
	for i, text := range s {
		t, err := ir.ParseTerm(text)
		if err != nil {
			return ir.Quad{}, err
		}
		terms[i] = t
	}
	p, ok := terms[1].(ir.NamedTerm)
	if !ok {
		return ir.Quad{}, fmt.Errorf("predicate %s is not an IRI", terms[1])
	}
	q := ir.NewQuad(terms[0], p, terms[2])
	if len(terms) == 4 {
		q = q.InGraph(terms[3])
	}
	if err := q.Validate(); err != nil {
		return ir.Quad{}, err
	}
	return q, nil
}

// Step is one batch of changes. Removals are applied after additions.
type Step struct {
	Add    []QuadSpec `yaml:"add,omitempty"`
	Remove []QuadSpec `yaml:"remove,omitempty"`

	// Expect maps a query name to the changes it must report for this step.
	// Queries not listed are not checked.
	Expect map[string]*ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause lists the result changes of one query for one step, one row
// per occurrence. Order does not matter.
type ExpectClause struct {
	New     []Row `yaml:"new,omitempty"`
	Removed []Row `yaml:"removed,omitempty"`
}

// Row is a result mapping from variable name (without "?") to term text.
type Row map[string]string

// Mapping parses the row.
func (r Row) Mapping() (ir.Mapping, error) {
	bs := make([]ir.Binding, 0, len(r))
	for name, text := range r {
		t, err := ir.ParseTerm(text)
		if err != nil {
			return ir.Mapping{}, fmt.Errorf("?%s: %w", name, err)
		}
		bs = append(bs, ir.B(strings.TrimPrefix(name, "?"), t))
	}
	return ir.NewMapping(bs...), nil
}

// Assertion validates the final results.
type Assertion struct {
	// Type specifies the assertion type:
	// - "results": the query's results equal Rows (as a multiset, or in
	//   order when Ordered is set)
	// - "contains": Row occurs in the query's results
	// - "absent": Row does not occur in the query's results
	// - "count": the query has exactly Count results
	// - "matches_reference": the query agrees with the reference evaluator
	Type string `yaml:"type"`

	// Query is the query name. matches_reference checks every query when
	// empty.
	Query string `yaml:"query,omitempty"`

	// Rows are the expected results (used by results).
	Rows []Row `yaml:"rows,omitempty"`

	// Ordered compares Rows in order (used by results).
	Ordered bool `yaml:"ordered,omitempty"`

	// Row is the expected mapping (used by contains and absent).
	Row Row `yaml:"row,omitempty"`

	// Count is the expected number of results (used by count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertResults          = "results"
	AssertContains         = "contains"
	AssertAbsent           = "absent"
	AssertCount            = "count"
	AssertMatchesReference = "matches_reference"
)

// LoadScenario reads and parses a scenario YAML file.
// Query file paths are resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving query file paths relative
// to basePath.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve query paths relative to base path BEFORE validation
	for i, p := range scenario.Queries {
		if !filepath.IsAbs(p) && basePath != "" {
			scenario.Queries[i] = filepath.Join(basePath, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Queries) == 0 && strings.TrimSpace(s.Inline) == "" {
		return fmt.Errorf("queries or inline is required")
	}
	if len(s.Steps) == 0 && len(s.Assertions) == 0 {
		return fmt.Errorf("steps or assertions are required")
	}

	for _, p := range s.Queries {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("query file not found: %s", p)
		}
	}

	for i, q := range s.Setup {
		if _, err := q.Quad(); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	for i, step := range s.Steps {
		if len(step.Add) == 0 && len(step.Remove) == 0 {
			return fmt.Errorf("steps[%d]: add or remove is required", i)
		}
		for j, q := range step.Add {
			if _, err := q.Quad(); err != nil {
				return fmt.Errorf("steps[%d].add[%d]: %w", i, j, err)
			}
		}
		for j, q := range step.Remove {
			if _, err := q.Quad(); err != nil {
				return fmt.Errorf("steps[%d].remove[%d]: %w", i, j, err)
			}
		}
		for name, exp := range step.Expect {
			if exp == nil {
				return fmt.Errorf("steps[%d].expect.%s: new or removed is required", i, name)
			}
			if err := validateRows(exp.New); err != nil {
				return fmt.Errorf("steps[%d].expect.%s.new: %w", i, name, err)
			}
			if err := validateRows(exp.Removed); err != nil {
				return fmt.Errorf("steps[%d].expect.%s.removed: %w", i, name, err)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateRows(rows []Row) error {
	for i, r := range rows {
		if _, err := r.Mapping(); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertResults:
		if a.Query == "" {
			return fmt.Errorf("assertions[%d]: query is required for results", index)
		}
		if err := validateRows(a.Rows); err != nil {
			return fmt.Errorf("assertions[%d].rows%w", index, err)
		}
	case AssertContains, AssertAbsent:
		if a.Query == "" {
			return fmt.Errorf("assertions[%d]: query is required for %s", index, a.Type)
		}
		if a.Row == nil {
			return fmt.Errorf("assertions[%d]: row is required for %s", index, a.Type)
		}
		if _, err := a.Row.Mapping(); err != nil {
			return fmt.Errorf("assertions[%d].row: %w", index, err)
		}
	case AssertCount:
		if a.Query == "" {
			return fmt.Errorf("assertions[%d]: query is required for count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for count", index)
		}
	case AssertMatchesReference:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
	"github.com/roach88/sparqlflow/internal/querysql"
)

// Solution is one result mapping of a one-shot query with its multiplicity.
type Solution struct {
	Mapping ir.Mapping
	Count   int
}

// Select evaluates q against the current contents in a single SQL
// statement. Only plain basic graph patterns are supported; other shapes
// fail with querysql.ErrUnsupported.
//
// Results are ordered by the text of the output variables, COLLATE BINARY.
func (s *Store) Select(ctx context.Context, q *queryir.Query) ([]Solution, error) {
	stmt, err := querysql.NewSQLCompiler().Compile(q)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Params...)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	defer rows.Close()

	var out []Solution
	texts := make([]string, len(stmt.Vars))
	dest := make([]any, len(stmt.Vars)+1)
	for i := range texts {
		dest[i] = &texts[i]
	}
	var weight sql.NullInt64
	dest[len(texts)] = &weight

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("select: scan: %w", err)
		}
		// An aggregate over no rows yields a single NULL weight.
		if !weight.Valid || weight.Int64 == 0 {
			continue
		}
		bs := make([]ir.Binding, len(texts))
		for i, text := range texts {
			t, err := unmarshalTerm(text)
			if err != nil {
				return nil, fmt.Errorf("select: %w", err)
			}
			bs[i] = ir.B(stmt.Vars[i], t)
		}
		out = append(out, Solution{Mapping: ir.NewMapping(bs...), Count: int(weight.Int64)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	return out, nil
}

// Package graph projects employee records into Neo4j as
// (:Employee)-[:WORKED]->(:Period) and reads period context back for
// prompt enrichment. The vector store stays the source of truth.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// maxContextRows caps PeriodContext output.
const maxContextRows = 50

// GraphStore provides the employee projection on top of Neo4j.
type GraphStore struct {
	opener SessionOpener
}

// New creates a GraphStore over a driver.
func New(driver neo4j.DriverWithContext) *GraphStore {
	return &GraphStore{opener: driverOpener{driver: driver}}
}

// NewWithOpener creates a GraphStore over a custom session opener.
func NewWithOpener(opener SessionOpener) *GraphStore {
	return &GraphStore{opener: opener}
}

// EnsureSchema creates the uniqueness constraints used by MERGE.
func (g *GraphStore) EnsureSchema(ctx context.Context) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	for _, stmt := range []string{
		`CREATE CONSTRAINT employee_id IF NOT EXISTS FOR (e:Employee) REQUIRE e.id IS UNIQUE`,
		`CREATE CONSTRAINT period_range IF NOT EXISTS FOR (p:Period) REQUIRE p.range IS UNIQUE`,
	} {
		if _, err := sess.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("graph: schema: %w", err)
		}
	}
	return nil
}

// SaveEmployee replaces the employee node and its WORKED edges.
func (g *GraphStore) SaveEmployee(ctx context.Context, rec domain.EmployeeRecord) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	id := int64(rec.ID)
	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		if _, err := tx.Run(ctx,
			`MERGE (e:Employee {id: $id}) SET e.name = $name, e.total_hours = $total`,
			map[string]any{"id": id, "name": rec.Name, "total": rec.TotalHours()},
		); err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx,
			`MATCH (e:Employee {id: $id})-[w:WORKED]->() DELETE w`,
			map[string]any{"id": id},
		); err != nil {
			return nil, err
		}
		for i, p := range rec.Periods {
			daily, _ := json.Marshal(p.DailyHours)
			if _, err := tx.Run(ctx,
				`MATCH (e:Employee {id: $id})
				 MERGE (p:Period {range: $range})
				 MERGE (e)-[w:WORKED {idx: $idx}]->(p)
				 SET w.hours = $hours, w.daily = $daily`,
				map[string]any{"id": id, "range": p.DateRange, "idx": i, "hours": p.TotalHours, "daily": string(daily)},
			); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graph: save employee %d: %w", rec.ID, err)
	}
	return nil
}

// DeleteEmployee removes an employee node and its edges. Unknown ids are a no-op.
func (g *GraphStore) DeleteEmployee(ctx context.Context, id uint64) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	if _, err := sess.Run(ctx, `MATCH (e:Employee {id: $id}) DETACH DELETE e`, map[string]any{"id": int64(id)}); err != nil {
		return fmt.Errorf("graph: delete employee %d: %w", id, err)
	}
	return nil
}

// DeleteAll removes every employee and every orphaned period.
func (g *GraphStore) DeleteAll(ctx context.Context) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		if _, err := tx.Run(ctx, `MATCH (e:Employee) DETACH DELETE e`, nil); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx, `MATCH (p:Period) WHERE NOT (p)--() DELETE p`, nil)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graph: delete all: %w", err)
	}
	return nil
}

// PeriodRow is one employee/period pair read from the graph.
type PeriodRow struct {
	Name  string
	Range string
	Hours float64
}

// Periods returns the periods of employees whose name contains any keyword.
func (g *GraphStore) Periods(ctx context.Context, keywords []string) ([]PeriodRow, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (e:Employee)-[w:WORKED]->(p:Period)
		WHERE any(k IN $keywords WHERE toLower(e.name) CONTAINS k)
		RETURN e.name AS name, p.range AS range, w.hours AS hours
		ORDER BY name, range LIMIT $limit`
	result, err := sess.Run(ctx, cypher, map[string]any{"keywords": lowerAll(keywords), "limit": maxContextRows})
	if err != nil {
		return nil, fmt.Errorf("graph: periods: %w", err)
	}
	var rows []PeriodRow
	for result.Next(ctx) {
		rec := result.Record()
		rows = append(rows, PeriodRow{
			Name:  strField(rec, "name"),
			Range: strField(rec, "range"),
			Hours: floatField(rec, "hours"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("graph: periods: %w", err)
	}
	return rows, nil
}

// PeriodContext renders Periods as prompt lines, one per period.
func (g *GraphStore) PeriodContext(ctx context.Context, keywords []string) (string, error) {
	rows, err := g.Periods(ctx, keywords)
	if err != nil || len(rows) == 0 {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Çalışma dönemleri (graf):\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "- %s: %s (%.1f saat)\n", r.Name, r.Range, r.Hours)
	}
	return b.String(), nil
}

// NodeCounts returns node counts grouped by label.
func (g *GraphStore) NodeCounts(ctx context.Context) (map[string]int64, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (n) RETURN labels(n)[0] AS type, count(*) AS count`, nil)
	if err != nil {
		return nil, fmt.Errorf("graph: node counts: %w", err)
	}
	counts := make(map[string]int64)
	for result.Next(ctx) {
		rec := result.Record()
		typ, _ := rec.Get("type")
		cnt, _ := rec.Get("count")
		if t, ok := typ.(string); ok {
			if c, ok := cnt.(int64); ok {
				counts[t] = c
			}
		}
	}
	return counts, nil
}

func lowerAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}

func strField(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func floatField(rec *neo4j.Record, key string) float64 {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

package search

import (
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs a UNION ALL over checklists (joined to template/producer names)
// and templates using plainto_tsquery and ts_rank.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultChecklist {
		where := fmt.Sprintf(
			"to_tsvector('simple', t.name || ' ' || pr.name || ' ' || c.public_id) @@ %s", tsQuery)
		if q.FilterProducer != "" {
			where += fmt.Sprintf(" AND c.producer_id = $%d", argN)
			args = append(args, q.FilterProducer)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'checklist'::text AS type, c.id, t.name AS title,
				pr.name AS snippet, c.producer_id, c.status,
				ts_rank(to_tsvector('simple', t.name || ' ' || pr.name), %s) AS rank
			FROM checklists c
			JOIN templates t ON t.id = c.template_id
			JOIN producers pr ON pr.id = c.producer_id
			WHERE %s`, tsQuery, where))
	}

	if q.FilterType == "" || q.FilterType == ResultTemplate {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'template'::text AS type, t.id, t.name AS title,
				''::text AS snippet, ''::text AS producer_id, ''::text AS status,
				ts_rank(to_tsvector('simple', t.name), %s) AS rank
			FROM templates t
			WHERE to_tsvector('simple', t.name) @@ %s`, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	query := fmt.Sprintf(`
		SELECT type, id, title, snippet, producer_id, status
		FROM (%s) hits
		ORDER BY rank DESC, id
		LIMIT %d OFFSET %d
	`, strings.Join(subQueries, " UNION ALL "), limit, offset)

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var rtyp string
		if err := rows.Scan(&rtyp, &r.ID, &r.Title, &r.Snippet, &r.ProducerID, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(rtyp)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts iterate: %w", err)
	}
	return results, len(results), nil
}

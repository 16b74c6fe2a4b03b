package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetChecklistByPublicID(ctx context.Context, publicID string) (Checklist, error) {
	var item Checklist
	err := s.db.QueryRowContext(ctx, `
		SELECT id, public_id, template_id, producer_id, status, parent_id, created_at, updated_at
		FROM checklists
		WHERE public_id=$1
	`, publicID).Scan(
		&item.ID,
		&item.PublicID,
		&item.TemplateID,
		&item.ProducerID,
		&item.Status,
		&item.ParentID,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Checklist{}, ErrNotFound
	}
	if err != nil {
		return Checklist{}, fmt.Errorf("get checklist: %w", err)
	}

	children, err := s.listChildren(ctx, item.ID)
	if err != nil {
		return Checklist{}, err
	}
	item.Children = children
	return item, nil
}

func (s *PostgresStore) listChildren(ctx context.Context, checklistID string) ([]ChecklistChild, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, public_id, kind, status
		FROM checklists
		WHERE parent_id=$1
		ORDER BY created_at
	`, checklistID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	items := make([]ChecklistChild, 0)
	for rows.Next() {
		var child ChecklistChild
		if err := rows.Scan(&child.ID, &child.PublicID, &child.Kind, &child.Status); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		items = append(items, child)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children: %w", err)
	}
	return items, nil
}

// ListChecklists returns a producer's checklists, optionally narrowed to one
// status. An empty status means no filter.
func (s *PostgresStore) ListChecklists(ctx context.Context, producerID, status string) ([]Checklist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, public_id, template_id, producer_id, status, parent_id, created_at, updated_at
		FROM checklists
		WHERE producer_id=$1 AND ($2 = '' OR status=$2)
		ORDER BY created_at DESC
	`, producerID, status)
	if err != nil {
		return nil, fmt.Errorf("list checklists: %w", err)
	}
	defer rows.Close()

	items := make([]Checklist, 0)
	for rows.Next() {
		var item Checklist
		if err := rows.Scan(
			&item.ID,
			&item.PublicID,
			&item.TemplateID,
			&item.ProducerID,
			&item.Status,
			&item.ParentID,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan checklist: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklists: %w", err)
	}
	return items, nil
}

// GetTemplate loads a template with its sections and items in display order.
func (s *PostgresStore) GetTemplate(ctx context.Context, templateID string) (Template, error) {
	var tpl Template
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, version, created_at FROM templates WHERE id=$1
	`, templateID).Scan(&tpl.ID, &tpl.Name, &tpl.Version, &tpl.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, ErrNotFound
	}
	if err != nil {
		return Template{}, fmt.Errorf("get template: %w", err)
	}

	sectionRows, err := s.db.QueryContext(ctx, `
		SELECT id, template_id, name, position, iterate_over_fields
		FROM sections
		WHERE template_id=$1
		ORDER BY position
	`, templateID)
	if err != nil {
		return Template{}, fmt.Errorf("list sections: %w", err)
	}
	defer sectionRows.Close()

	byID := map[string]int{}
	for sectionRows.Next() {
		var sec Section
		if err := sectionRows.Scan(&sec.ID, &sec.TemplateID, &sec.Name, &sec.Position, &sec.IterateOverFields); err != nil {
			return Template{}, fmt.Errorf("scan section: %w", err)
		}
		byID[sec.ID] = len(tpl.Sections)
		tpl.Sections = append(tpl.Sections, sec)
	}
	if err := sectionRows.Err(); err != nil {
		return Template{}, fmt.Errorf("iterate sections: %w", err)
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.section_id, i.name, i.type, i.position, i.required, i.ask_for_quantity,
			COALESCE(i.database_source, ''), COALESCE(i.options, '{}')
		FROM items i
		JOIN sections sec ON sec.id = i.section_id
		WHERE sec.template_id=$1
		ORDER BY sec.position, i.position
	`, templateID)
	if err != nil {
		return Template{}, fmt.Errorf("list items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item Item
		var options []byte
		if err := itemRows.Scan(
			&item.ID,
			&item.SectionID,
			&item.Name,
			&item.Type,
			&item.Position,
			&item.Required,
			&item.AskForQuantity,
			&item.DatabaseSource,
			&options,
		); err != nil {
			return Template{}, fmt.Errorf("scan item: %w", err)
		}
		item.Options = parsePgTextArray(options)
		if idx, ok := byID[item.SectionID]; ok {
			tpl.Sections[idx].Items = append(tpl.Sections[idx].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return Template{}, fmt.Errorf("iterate items: %w", err)
	}
	return tpl, nil
}

func (s *PostgresStore) ListFields(ctx context.Context, producerID string) ([]Field, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, producer_id, name, area
		FROM fields
		WHERE producer_id=$1
		ORDER BY name, id
	`, producerID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	items := make([]Field, 0)
	for rows.Next() {
		var item Field
		if err := rows.Scan(&item.ID, &item.ProducerID, &item.Name, &item.Area); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fields: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListResponses(ctx context.Context, checklistID string) ([]ResponseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT checklist_id, item_id, COALESCE(field_id, ''), answer, quantity,
			COALESCE(observation_value, ''), COALESCE(file_url, ''), status,
			COALESCE(rejection_reason, ''), is_internal, metadata, updated_at
		FROM responses
		WHERE checklist_id=$1
		ORDER BY item_id, field_id
	`, checklistID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	items := make([]ResponseRecord, 0)
	for rows.Next() {
		var item ResponseRecord
		if err := rows.Scan(
			&item.ChecklistID,
			&item.ItemID,
			&item.FieldID,
			&item.Answer,
			&item.Quantity,
			&item.ObservationValue,
			&item.FileURL,
			&item.Status,
			&item.RejectionReason,
			&item.IsInternal,
			&item.Metadata,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpsertResponse(ctx context.Context, rec ResponseRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO responses (checklist_id, item_id, field_id, answer, quantity,
			observation_value, file_url, status, rejection_reason, is_internal, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (checklist_id, item_id, field_id) DO UPDATE SET
			answer=EXCLUDED.answer,
			quantity=EXCLUDED.quantity,
			observation_value=EXCLUDED.observation_value,
			file_url=EXCLUDED.file_url,
			status=EXCLUDED.status,
			rejection_reason=EXCLUDED.rejection_reason,
			is_internal=EXCLUDED.is_internal,
			metadata=EXCLUDED.metadata,
			updated_at=NOW()
	`, rec.ChecklistID, rec.ItemID, rec.FieldID, rec.Answer, rec.Quantity,
		rec.ObservationValue, rec.FileURL, rec.Status, rec.RejectionReason,
		rec.IsInternal, rec.Metadata)
	if err != nil {
		return fmt.Errorf("upsert response: %w", err)
	}
	return nil
}

// ReplaceResponses swaps the full response set of a checklist in one
// transaction; the submit path depends on this being all-or-nothing.
func (s *PostgresStore) ReplaceResponses(ctx context.Context, checklistID string, records []ResponseRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace responses: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM responses WHERE checklist_id=$1`, checklistID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear responses: %w", err)
	}

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO responses (checklist_id, item_id, field_id, answer, quantity,
				observation_value, file_url, status, rejection_reason, is_internal, metadata, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		`, checklistID, rec.ItemID, rec.FieldID, rec.Answer, rec.Quantity,
			rec.ObservationValue, rec.FileURL, rec.Status, rec.RejectionReason,
			rec.IsInternal, rec.Metadata); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert response %s: %w", rec.ItemID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE checklists SET status='IN_PROGRESS', updated_at=NOW()
		WHERE id=$1 AND status='SENT'
	`, checklistID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("advance checklist status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace responses: %w", err)
	}
	return nil
}

var ErrUnresolvedChildren = errors.New("checklist has unresolved children")

// FinalizeChecklist is irreversible and refuses while any correction or
// completion follow-up is still open.
func (s *PostgresStore) FinalizeChecklist(ctx context.Context, checklistID string) error {
	var open int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM checklists WHERE parent_id=$1 AND status <> 'FINALIZED'
	`, checklistID).Scan(&open)
	if err != nil {
		return fmt.Errorf("count open children: %w", err)
	}
	if open > 0 {
		return ErrUnresolvedChildren
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE checklists SET status='FINALIZED', updated_at=NOW()
		WHERE id=$1 AND status <> 'FINALIZED'
	`, checklistID)
	if err != nil {
		return fmt.Errorf("finalize checklist: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetProducer(ctx context.Context, producerID string) (Producer, error) {
	var item Producer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(document, ''), created_at FROM producers WHERE id=$1
	`, producerID).Scan(&item.ID, &item.Name, &item.Document, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Producer{}, ErrNotFound
	}
	if err != nil {
		return Producer{}, fmt.Errorf("get producer: %w", err)
	}
	return item, nil
}

// parsePgTextArray decodes the common case of a Postgres text[] literal,
// enough for item option lists ({a,b,"c d"}).
func parsePgTextArray(raw []byte) []string {
	s := string(raw)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil
	}
	s = s[1 : len(s)-1]
	if s == "" {
		return nil
	}
	var out []string
	var cur []rune
	inQuote := false
	escaped := false
	flush := func() {
		out = append(out, string(cur))
		cur = cur[:0]
	}
	for _, r := range s {
		switch {
		case escaped:
			cur = append(cur, r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case r == ',' && !inQuote:
			flush()
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return out
}

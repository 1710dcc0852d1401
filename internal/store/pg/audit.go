package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gatekeeper.dev/internal/audit"
)

// AuditStore implements audit.Store on Postgres. The id column is a
// bigserial, so ids stay unique and strictly increasing across concurrent
// appends without application-side locking.
type AuditStore struct {
	db *sql.DB
}

var _ audit.Store = (*AuditStore)(nil)

func (s *AuditStore) Append(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if err := e.Validate(); err != nil {
		return audit.Entry{}, err
	}

	var changes any
	if len(e.Changes) > 0 {
		data, err := json.Marshal(e.Changes)
		if err != nil {
			return audit.Entry{}, fmt.Errorf("encode changes: %w", err)
		}
		changes = data
	}

	err := s.db.QueryRowContext(ctx, `
		insert into audit_logs
			(subject_id, subject_name, email, action, resource, resource_id, resource_name, status, occurred_at, details, changes)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		returning id
	`, e.SubjectID, e.SubjectName, e.Email, string(e.Action), string(e.Resource),
		nullable(e.ResourceID), nullable(e.ResourceName), string(e.Status),
		e.Timestamp, e.Details, changes,
	).Scan(&e.ID)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("append audit entry: %w", err)
	}
	return e, nil
}

func (s *AuditStore) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(cond, len(args)))
	}
	if f.SubjectID != "" {
		add("subject_id = $%d", f.SubjectID)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.Resource != "" {
		add("resource = $%d", string(f.Resource))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at <= $%d", f.To)
	}

	query := `
		select id, subject_id, subject_name, email, action, resource,
		       coalesce(resource_id, ''), coalesce(resource_name, ''),
		       status, occurred_at, details, changes
		from audit_logs`
	if len(clauses) > 0 {
		query += " where " + strings.Join(clauses, " and ")
	}
	// id desc breaks timestamp ties in favor of the later insert.
	query += " order by occurred_at desc, id desc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e       audit.Entry
			changes []byte
		)
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.SubjectName, &e.Email,
			&e.Action, &e.Resource, &e.ResourceID, &e.ResourceName,
			&e.Status, &e.Timestamp, &e.Details, &changes); err != nil {
			return nil, err
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &e.Changes); err != nil {
				return nil, fmt.Errorf("decode changes for entry %d: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *AuditStore) Stats(ctx context.Context) (audit.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
		select status, action, resource, count(*)
		from audit_logs
		group by status, action, resource
	`)
	if err != nil {
		return audit.Stats{}, fmt.Errorf("aggregate audit log: %w", err)
	}
	defer rows.Close()

	stats := audit.Stats{
		ByAction:   make(map[audit.Action]int, 4),
		ByResource: make(map[audit.Resource]int, 4),
	}
	for _, a := range audit.Actions() {
		stats.ByAction[a] = 0
	}
	for _, r := range audit.Resources() {
		stats.ByResource[r] = 0
	}
	for rows.Next() {
		var (
			status   audit.Status
			action   audit.Action
			resource audit.Resource
			count    int
		)
		if err := rows.Scan(&status, &action, &resource, &count); err != nil {
			return audit.Stats{}, err
		}
		stats.TotalLogs += count
		if status == audit.StatusSuccess {
			stats.SuccessCount += count
		} else {
			stats.FailureCount += count
		}
		stats.ByAction[action] += count
		stats.ByResource[resource] += count
	}
	return stats, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

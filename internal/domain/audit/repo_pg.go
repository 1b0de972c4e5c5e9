package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepoPG is the Postgres-backed audit store.
type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

const auditCols = `id, actor_id, action, resource_type, resource_id,
	method, path, ip_address, user_agent, outcome, status_code,
	detail, error_message, duration_ms, created_at`

func (r *RepoPG) Insert(ctx context.Context, rec *Record) error {
	var detail []byte
	if rec.Detail != nil {
		var err error
		detail, err = json.Marshal(rec.Detail)
		if err != nil {
			return fmt.Errorf("encode audit detail: %w", err)
		}
	}

	const q = `
		INSERT INTO audit_log (
			id, actor_id, action, resource_type, resource_id,
			method, path, ip_address, user_agent, outcome, status_code,
			detail, error_message, duration_ms, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	_, err := r.pool.Exec(ctx, q,
		rec.ID, nullable(rec.ActorID), string(rec.Action), string(rec.Resource),
		nullable(rec.ResourceID), nullable(rec.Method), rec.Path, rec.IPAddress,
		nullable(rec.UserAgent), string(rec.Outcome), rec.StatusCode,
		detail, nullable(rec.ErrorMessage), rec.DurationMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (r *RepoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error) {
	where := []string{}
	args := []any{}
	idx := 1

	add := func(clause string, v any) {
		where = append(where, fmt.Sprintf(clause, idx))
		args = append(args, v)
		idx++
	}

	if f.ActorID != "" {
		add("actor_id = $%d", f.ActorID)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.Resource != "" {
		add("resource_type = $%d", string(f.Resource))
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQ := fmt.Sprintf("SELECT COUNT(*) FROM audit_log %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM audit_log %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		auditCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search audit records: %w", err)
	}
	defer rows.Close()

	var items []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}

func (r *RepoPG) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM audit_log WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var actorID, resourceID, method, userAgent, errMsg *string
	var detail []byte

	err := row.Scan(
		&rec.ID, &actorID, &rec.Action, &rec.Resource, &resourceID,
		&method, &rec.Path, &rec.IPAddress, &userAgent, &rec.Outcome,
		&rec.StatusCode, &detail, &errMsg, &rec.DurationMs, &rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan audit record: %w", err)
	}

	rec.ActorID = deref(actorID)
	rec.ResourceID = deref(resourceID)
	rec.Method = deref(method)
	rec.UserAgent = deref(userAgent)
	rec.ErrorMessage = deref(errMsg)

	if len(detail) > 0 {
		var d Detail
		if err := json.Unmarshal(detail, &d); err != nil {
			return nil, fmt.Errorf("decode audit detail: %w", err)
		}
		rec.Detail = &d
	}
	return &rec, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

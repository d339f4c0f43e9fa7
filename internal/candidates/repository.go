// Package candidates persists the durable candidate records created at
// submission time and looked up to classify new vs. returning candidates.
package candidates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hirepath/intake/internal/phone"
)

// Candidate is a durable record; normalized_phone is the lookup key.
type Candidate struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	NormalizedPhone string    `json:"normalized_phone"`
	CreatedAt       time.Time `json:"created_at"`
}

// DBTX is the pgx query surface the repository needs; *pgxpool.Pool
// satisfies it, fakes implement it in tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads and writes candidate rows.
type Repository struct {
	db     DBTX
	logger *slog.Logger
}

// NewRepository creates a candidate repository.
func NewRepository(log *slog.Logger, db DBTX) *Repository {
	if log == nil {
		log = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: log.With(slog.String("service", "candidates")),
	}
}

const upsertSQL = `
INSERT INTO candidates (name, phone, normalized_phone)
VALUES ($1, $2, $3)
ON CONFLICT (normalized_phone) DO UPDATE
SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE candidates.name END
RETURNING id, name, phone, normalized_phone, created_at`

// Upsert creates or refreshes a candidate keyed by normalized phone. A
// blank incoming name never erases a previously recorded one.
func (r *Repository) Upsert(ctx context.Context, name, rawPhone string) (Candidate, error) {
	normalized := phone.Normalize(rawPhone)
	if normalized == "" {
		return Candidate{}, fmt.Errorf("phone is required")
	}
	row := r.db.QueryRow(ctx, upsertSQL, strings.TrimSpace(name), strings.TrimSpace(rawPhone), normalized)
	return scanCandidate(row)
}

const findByPhoneSQL = `
SELECT id, name, phone, normalized_phone, created_at
FROM candidates
WHERE normalized_phone = $1`

// FindByPhone looks a candidate up by normalized phone. The second result
// reports whether a record exists.
func (r *Repository) FindByPhone(ctx context.Context, rawPhone string) (Candidate, bool, error) {
	normalized := phone.Normalize(rawPhone)
	if normalized == "" {
		return Candidate{}, false, nil
	}
	row := r.db.QueryRow(ctx, findByPhoneSQL, normalized)
	candidate, err := scanCandidate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Candidate{}, false, nil
	}
	if err != nil {
		return Candidate{}, false, err
	}
	return candidate, true, nil
}

const findByNameSQL = `
SELECT id, name, phone, normalized_phone, created_at
FROM candidates
WHERE name = $1
ORDER BY created_at DESC
LIMIT 1`

// FindByName looks a candidate up by exact trimmed name.
func (r *Repository) FindByName(ctx context.Context, name string) (Candidate, bool, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Candidate{}, false, nil
	}
	row := r.db.QueryRow(ctx, findByNameSQL, trimmed)
	candidate, err := scanCandidate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Candidate{}, false, nil
	}
	if err != nil {
		return Candidate{}, false, err
	}
	return candidate, true, nil
}

// IsReturning reports whether an application from this phone or name has
// been seen before.
func (r *Repository) IsReturning(ctx context.Context, name, rawPhone string) (bool, error) {
	if _, found, err := r.FindByPhone(ctx, rawPhone); err != nil {
		return false, err
	} else if found {
		return true, nil
	}
	_, found, err := r.FindByName(ctx, name)
	return found, err
}

func scanCandidate(row pgx.Row) (Candidate, error) {
	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
		candidate Candidate
	)
	if err := row.Scan(&id, &candidate.Name, &candidate.Phone, &candidate.NormalizedPhone, &createdAt); err != nil {
		return Candidate{}, err
	}
	candidate.ID = id.String()
	candidate.CreatedAt = createdAt.Time
	return candidate, nil
}

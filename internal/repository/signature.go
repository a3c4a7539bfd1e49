package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dharsanguruparan/songauth/internal/model"
)

var (
	// ErrNotFound is returned for unknown record ids.
	ErrNotFound = errors.New("signature record not found")
	// ErrDuplicate is returned when a record id is saved twice.
	ErrDuplicate = errors.New("signature record already exists")
)

// uniqueViolation is the PostgreSQL SQLSTATE for a primary key clash.
const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool used by the repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SignatureRepository stores signature records in PostgreSQL.
type SignatureRepository struct {
	db DB
}

// NewSignatureRepository constructs a repository.
func NewSignatureRepository(db DB) *SignatureRepository {
	return &SignatureRepository{db: db}
}

const selectColumns = `id, message, digest, signature, scheme, key_fingerprint, created_at`

// Save inserts a record.
func (r *SignatureRepository) Save(ctx context.Context, rec *model.SignatureRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO signatures (`+selectColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, rec.ID, rec.Message, rec.Digest, rec.Signature, rec.Scheme, rec.KeyFingerprint, rec.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert signature: %w", err)
	}
	return nil
}

// Get returns a record by id.
func (r *SignatureRepository) Get(ctx context.Context, id string) (*model.SignatureRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM signatures WHERE id=$1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select signature: %w", err)
	}
	return rec, nil
}

// FindBySignature returns every record carrying signature, oldest first.
func (r *SignatureRepository) FindBySignature(ctx context.Context, signature string) ([]*model.SignatureRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+selectColumns+` FROM signatures WHERE signature=$1 ORDER BY created_at`, signature)
	if err != nil {
		return nil, fmt.Errorf("query signatures: %w", err)
	}
	defer rows.Close()
	var out []*model.SignatureRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*model.SignatureRecord, error) {
	var rec model.SignatureRecord
	if err := row.Scan(&rec.ID, &rec.Message, &rec.Digest, &rec.Signature, &rec.Scheme, &rec.KeyFingerprint, &rec.CreatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

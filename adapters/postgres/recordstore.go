package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/awsapigw/domain/provision"
	"github.com/artpar/awsapigw/ports"
)

// RecordStore implements ports.RecordStore using PostgreSQL.
type RecordStore struct {
	db *DB
}

// NewRecordStore creates a new PostgreSQL record store.
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

const recordColumns = `service_id, key_id, key_value, region, usage_plans, created_at, updated_at`

// Get retrieves the record of a service.
func (s *RecordStore) Get(ctx context.Context, serviceID int64) (provision.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM service_keys WHERE service_id = $1`, serviceID)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return provision.Record{}, ports.ErrNotFound
	}
	return r, err
}

// Exists reports whether a record exists for the service.
func (s *RecordStore) Exists(ctx context.Context, serviceID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM service_keys WHERE service_id = $1)`, serviceID).Scan(&exists)
	return exists, err
}

// InsertIfAbsent stores r unless the service already has a record.
func (s *RecordStore) InsertIfAbsent(ctx context.Context, r provision.Record) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO service_keys (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (service_id) DO NOTHING
	`, r.ServiceID, r.KeyID, r.KeyValue, r.Region, plansColumn(r.UsagePlans), r.CreatedAt, r.UpdatedAt)
	if hasPGCode(err, pgUniqueViolation) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return affected(result)
}

// UpdateTimestamps overwrites the mirrored timestamps.
func (s *RecordStore) UpdateTimestamps(ctx context.Context, serviceID int64, createdAt, updatedAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE service_keys SET created_at = $1, updated_at = $2 WHERE service_id = $3`,
		createdAt, updatedAt, serviceID)
	if err != nil {
		return false, err
	}
	return affected(result)
}

// Delete removes the record of a service.
func (s *RecordStore) Delete(ctx context.Context, serviceID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM service_keys WHERE service_id = $1`, serviceID)
	if err != nil {
		return false, err
	}
	return affected(result)
}

// List returns records ordered by service ID. A non-positive limit returns all.
func (s *RecordStore) List(ctx context.Context, limit, offset int) ([]provision.Record, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM service_keys
		ORDER BY service_id
		LIMIT $1 OFFSET $2
	`, limitArg, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []provision.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Ping verifies the database is reachable.
func (s *RecordStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (provision.Record, error) {
	var r provision.Record
	var plans sql.NullString

	if err := row.Scan(&r.ServiceID, &r.KeyID, &r.KeyValue, &r.Region, &plans, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return provision.Record{}, err
	}
	r.UsagePlans = provision.SplitUsagePlans(plans.String)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func plansColumn(plans []string) sql.NullString {
	s := provision.JoinUsagePlans(plans)
	return sql.NullString{String: s, Valid: s != ""}
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Ensure interface compliance.
var _ ports.RecordStore = (*RecordStore)(nil)

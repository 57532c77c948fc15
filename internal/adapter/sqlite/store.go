package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neomorfeo/foodflow/internal/domain"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: DonationStore implements domain.DonationStore.
var _ domain.DonationStore = (*DonationStore)(nil)

// DonationStore implements domain.DonationStore using SQLite.
type DonationStore struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready store.
func New(dataSourceName string) (*DonationStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: ":memory:" databases are per-connection, and writers
	// serialize in SQLite anyway.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready store.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*DonationStore, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &DonationStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *DonationStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other adapters (e.g., river).
func (s *DonationStore) DB() *sql.DB {
	return s.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// Fixed width keeps lexicographic order equal to time order, so safe_until
// can be compared in SQL.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

const columns = `id, donor_id, item_name, quantity, category, address, notes, status,
	claimed_by_nonprofit_id, assigned_driver_id, lapsed_claim_nonprofit_id,
	pickup_start, pickup_end, safe_until, created_at, updated_at`

func (s *DonationStore) Create(ctx context.Context, d domain.Donation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO donations (`+columns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.DonorID, d.ItemName, d.Quantity, string(d.Category), d.Address, d.Notes, string(d.Status),
		nullable(d.ClaimedByNonprofitID), nullable(d.AssignedDriverID), nullable(d.LapsedClaimNonprofitID),
		formatTime(d.PickupWindow.Start), formatTime(d.PickupWindow.End), formatTime(d.SafeUntil),
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err, "UNIQUE") {
			return &domain.DuplicateDonationError{ID: d.ID}
		}
		if isConstraintViolation(err, "CHECK") {
			return &domain.InvariantError{ID: d.ID, Reason: err.Error()}
		}
		return &domain.StorageUnavailableError{Op: "inserting donation", Err: err}
	}
	return nil
}

func (s *DonationStore) GetByID(ctx context.Context, id string) (domain.Donation, error) {
	d, err := scanDonation(s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM donations WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Donation{}, domain.ErrDonationNotFound
	}
	if err != nil {
		return domain.Donation{}, readError("reading donation", err)
	}
	return d, nil
}

func (s *DonationStore) List(ctx context.Context, filter domain.ListFilter) ([]domain.Donation, error) {
	var where []string
	var args []any

	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.DonorID != "" {
		where = append(where, "donor_id = ?")
		args = append(args, filter.DonorID)
	}
	if filter.ClaimedByNonprofitID != "" {
		where = append(where, "claimed_by_nonprofit_id = ?")
		args = append(args, filter.ClaimedByNonprofitID)
	}
	if filter.AssignedDriverID != "" {
		where = append(where, "assigned_driver_id = ?")
		args = append(args, filter.AssignedDriverID)
	}
	if !filter.SafeAt.IsZero() {
		where = append(where, "safe_until >= ?")
		args = append(args, formatTime(filter.SafeAt))
	}
	if !filter.ExpiredAt.IsZero() {
		where = append(where, "safe_until < ?")
		args = append(args, formatTime(filter.ExpiredAt))
	}

	query := `SELECT ` + columns + ` FROM donations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.StorageUnavailableError{Op: "listing donations", Err: err}
	}
	defer rows.Close()

	var donations []domain.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, readError("scanning donation row", err)
		}
		donations = append(donations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageUnavailableError{Op: "listing donations", Err: err}
	}

	return donations, nil
}

// CompareAndSwapStatus issues a single UPDATE keyed on (id, status) plus the
// preconditions. Zero affected rows means someone else moved the donation,
// or it does not exist.
func (s *DonationStore) CompareAndSwapStatus(ctx context.Context, id string, expected, next domain.Status, changes domain.Changes) (domain.Donation, error) {
	set := []string{"status = ?", "updated_at = ?"}
	args := []any{string(next), formatTime(changes.UpdatedAt)}

	if changes.ClaimedByNonprofitID != "" {
		set = append(set, "claimed_by_nonprofit_id = ?")
		args = append(args, changes.ClaimedByNonprofitID)
	}
	if changes.AssignedDriverID != "" {
		set = append(set, "assigned_driver_id = ?")
		args = append(args, changes.AssignedDriverID)
	}
	if changes.LapseClaim {
		// Right-hand sides see the row as it was before this UPDATE.
		set = append(set,
			"lapsed_claim_nonprofit_id = claimed_by_nonprofit_id",
			"claimed_by_nonprofit_id = NULL",
		)
	}

	where := []string{"id = ?", "status = ?"}
	args = append(args, id, string(expected))

	req := changes.Require
	if req.ClaimedByNonprofitID != "" {
		where = append(where, "claimed_by_nonprofit_id = ?")
		args = append(args, req.ClaimedByNonprofitID)
	}
	if req.AssignedDriverID != "" {
		where = append(where, "assigned_driver_id = ?")
		args = append(args, req.AssignedDriverID)
	}
	if !req.SafeAt.IsZero() {
		where = append(where, "safe_until >= ?")
		args = append(args, formatTime(req.SafeAt))
	}
	if !req.ExpiredAt.IsZero() {
		where = append(where, "safe_until < ?")
		args = append(args, formatTime(req.ExpiredAt))
	}

	query := `UPDATE donations SET ` + strings.Join(set, ", ") +
		` WHERE ` + strings.Join(where, " AND ") +
		` RETURNING ` + columns

	updated, err := scanDonation(s.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		if isConstraintViolation(err, "CHECK") {
			return domain.Donation{}, &domain.InvariantError{ID: id, Reason: err.Error()}
		}
		return domain.Donation{}, readError("updating donation status", err)
	}

	// Nothing matched. This read only classifies the failure; the write has
	// already been refused.
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Donation{}, err
	}
	return domain.Donation{}, &domain.ConflictError{ID: id, Expected: expected, Actual: current.Status}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDonation(row scanner) (domain.Donation, error) {
	var d domain.Donation
	var category, status string
	var claimedBy, driver, lapsed sql.NullString
	var pickupStart, pickupEnd, safeUntil, createdAt, updatedAt string

	err := row.Scan(
		&d.ID, &d.DonorID, &d.ItemName, &d.Quantity, &category, &d.Address, &d.Notes, &status,
		&claimedBy, &driver, &lapsed,
		&pickupStart, &pickupEnd, &safeUntil, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.Donation{}, err
	}

	d.Category = domain.Category(category)
	d.Status = domain.Status(status)
	d.ClaimedByNonprofitID = claimedBy.String
	d.AssignedDriverID = driver.String
	d.LapsedClaimNonprofitID = lapsed.String

	for _, col := range []struct {
		name  string
		value string
		dst   *time.Time
	}{
		{"pickup_start", pickupStart, &d.PickupWindow.Start},
		{"pickup_end", pickupEnd, &d.PickupWindow.End},
		{"safe_until", safeUntil, &d.SafeUntil},
		{"created_at", createdAt, &d.CreatedAt},
		{"updated_at", updatedAt, &d.UpdatedAt},
	} {
		t, err := time.Parse(timeFormat, col.value)
		if err != nil {
			return domain.Donation{}, &domain.InvariantError{ID: d.ID, Reason: fmt.Sprintf("malformed %s %q", col.name, col.value)}
		}
		*col.dst = t
	}

	if err := d.CheckInvariants(); err != nil {
		return domain.Donation{}, err
	}
	return d, nil
}

// readError classifies a scan failure: inconsistent rows surface as they
// are, anything else is a storage failure.
func readError(op string, err error) error {
	var invErr *domain.InvariantError
	if errors.As(err, &invErr) {
		return err
	}
	return &domain.StorageUnavailableError{Op: op, Err: err}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isConstraintViolation checks if a SQLite error is a constraint failure of
// the given kind ("UNIQUE", "CHECK").
func isConstraintViolation(err error, kind string) bool {
	return strings.Contains(err.Error(), kind+" constraint failed")
}

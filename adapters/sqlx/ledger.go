package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	// database drivers selectable via Config.Driver
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"questkit/core"
	"questkit/engine"
)

// Driver selects the SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL connection configuration.
type Config struct {
	Driver          Driver        `json:"driver"`
	DSN             string        `json:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// DefaultConfig returns sensible defaults for the given driver.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		DSN:             "",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Ledger implements engine.Ledger on a SQL database. The conditional
// write is expressed as an UPDATE guarded by the previously observed
// (status, cycle); zero affected rows means the race was lost.
type Ledger struct {
	db     *sqlx.DB
	driver Driver
}

// New opens a database connection per config and returns a Ledger.
func New(cfg Config) (*Ledger, error) {
	db, err := sqlx.Connect(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return NewWithDB(db, cfg.Driver), nil
}

// NewWithDB creates a Ledger using an existing DB handle (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Ledger {
	return &Ledger{db: db, driver: driver}
}

// Close closes the underlying connection pool.
func (l *Ledger) Close() error { return l.db.Close() }

// EnsureSchema creates the progress table when it does not exist yet.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS user_quest_progress (
		user_id    BIGINT      NOT NULL,
		quest_id   BIGINT      NOT NULL,
		cycle      INT         NOT NULL,
		status     VARCHAR(16) NOT NULL,
		progress   INT         NOT NULL,
		settlement VARCHAR(16) NOT NULL DEFAULT '',
		created_at TIMESTAMP   NOT NULL,
		updated_at TIMESTAMP   NOT NULL,
		PRIMARY KEY (user_id, quest_id)
	)`
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

type row struct {
	UserID     int64     `db:"user_id"`
	QuestID    int64     `db:"quest_id"`
	Cycle      int       `db:"cycle"`
	Status     string    `db:"status"`
	Progress   int       `db:"progress"`
	Settlement string    `db:"settlement"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r row) record() core.ProgressRecord {
	return core.ProgressRecord{
		UserID:     core.UserID(r.UserID),
		QuestID:    core.QuestID(r.QuestID),
		Cycle:      r.Cycle,
		Status:     core.Status(r.Status),
		Progress:   r.Progress,
		Settlement: core.SettlementState(r.Settlement),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (l *Ledger) Read(ctx context.Context, user core.UserID, quest core.QuestID) (core.ProgressRecord, error) {
	var r row
	q := l.db.Rebind(`SELECT user_id, quest_id, cycle, status, progress, settlement, created_at, updated_at
		FROM user_quest_progress WHERE user_id = ? AND quest_id = ?`)
	err := l.db.GetContext(ctx, &r, q, int64(user), int64(quest))
	if errors.Is(err, sql.ErrNoRows) {
		return core.ProgressRecord{}, fmt.Errorf("%w: no record for user %d quest %d", core.ErrNotFound, user, quest)
	}
	if err != nil {
		return core.ProgressRecord{}, fmt.Errorf("failed to read record: %w", err)
	}
	return r.record(), nil
}

func (l *Ledger) Upsert(ctx context.Context, rec core.ProgressRecord, expected core.ExpectedState) error {
	if expected.Absent {
		q := l.db.Rebind(`INSERT INTO user_quest_progress
			(user_id, quest_id, cycle, status, progress, settlement, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err := l.db.ExecContext(ctx, q,
			int64(rec.UserID), int64(rec.QuestID), rec.Cycle, string(rec.Status),
			rec.Progress, string(rec.Settlement), rec.CreatedAt, rec.UpdatedAt)
		if err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("%w: record already exists for user %d quest %d", core.ErrConflict, rec.UserID, rec.QuestID)
			}
			return fmt.Errorf("failed to insert record: %w", err)
		}
		return nil
	}

	q := l.db.Rebind(`UPDATE user_quest_progress
		SET cycle = ?, status = ?, progress = ?, settlement = ?, updated_at = ?
		WHERE user_id = ? AND quest_id = ? AND status = ? AND cycle = ?`)
	res, err := l.db.ExecContext(ctx, q,
		rec.Cycle, string(rec.Status), rec.Progress, string(rec.Settlement), rec.UpdatedAt,
		int64(rec.UserID), int64(rec.QuestID), string(expected.Status), expected.Cycle)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: expected %s/cycle %d no longer holds for user %d quest %d",
			core.ErrConflict, expected.Status, expected.Cycle, rec.UserID, rec.QuestID)
	}
	return nil
}

func (l *Ledger) SetSettlement(ctx context.Context, user core.UserID, quest core.QuestID, cycle int, state core.SettlementState) error {
	q := l.db.Rebind(`UPDATE user_quest_progress SET settlement = ?, updated_at = ?
		WHERE user_id = ? AND quest_id = ? AND cycle = ?`)
	res, err := l.db.ExecContext(ctx, q, string(state), time.Now().UTC(), int64(user), int64(quest), cycle)
	if err != nil {
		return fmt.Errorf("failed to update settlement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check settlement result: %w", err)
	}
	if affected == 0 {
		if _, err := l.Read(ctx, user, quest); errors.Is(err, core.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: settlement targets cycle %d which has moved", core.ErrConflict, cycle)
	}
	return nil
}

func (l *Ledger) CountAssignments(ctx context.Context, user core.UserID, quest core.QuestID) (int, error) {
	var count int
	q := l.db.Rebind(`SELECT COALESCE(MAX(cycle), 0) FROM user_quest_progress
		WHERE user_id = ? AND quest_id = ?`)
	if err := l.db.GetContext(ctx, &count, q, int64(user), int64(quest)); err != nil {
		return 0, fmt.Errorf("failed to count assignments: %w", err)
	}
	return count, nil
}

func (l *Ledger) ListByUser(ctx context.Context, user core.UserID) ([]core.ProgressRecord, error) {
	var rows []row
	q := l.db.Rebind(`SELECT user_id, quest_id, cycle, status, progress, settlement, created_at, updated_at
		FROM user_quest_progress WHERE user_id = ? ORDER BY quest_id`)
	if err := l.db.SelectContext(ctx, &rows, q, int64(user)); err != nil {
		return nil, fmt.Errorf("failed to list user records: %w", err)
	}
	out := make([]core.ProgressRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

func (l *Ledger) ListUnsettled(ctx context.Context, limit int) ([]core.ProgressRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []row
	q := l.db.Rebind(`SELECT user_id, quest_id, cycle, status, progress, settlement, created_at, updated_at
		FROM user_quest_progress
		WHERE status = ? AND settlement IN (?, ?)
		ORDER BY updated_at LIMIT ?`)
	err := l.db.SelectContext(ctx, &rows, q,
		string(core.StatusClaimed), string(core.SettlementPending), string(core.SettlementFailed), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled records: %w", err)
	}
	out := make([]core.ProgressRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

// isDuplicateKey sniffs driver-specific unique violation errors so an
// insert race maps onto the Conflict taxonomy.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}

var _ engine.Ledger = (*Ledger)(nil)

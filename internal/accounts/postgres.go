package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/shopspring/decimal"

	"github.com/sawpanic/noticerun/internal/config"
)

const accountQuery = `
	SELECT account_id, client_id, secret_name, guideline_pct, assignee_user_id
	FROM accounts
	WHERE account_id = $1 AND active`

type accountRow struct {
	ID             int64          `db:"account_id"`
	ClientID       string         `db:"client_id"`
	SecretName     string         `db:"secret_name"`
	GuidelinePct   sql.NullString `db:"guideline_pct"`
	AssigneeUserID sql.NullInt64  `db:"assignee_user_id"`
}

// PostgresStore reads accounts from the accounts table.
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to postgres, configures the pool and pings the server.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewPostgresStore(db, cfg.QueryTimeout()), nil
}

// NewPostgresStore wraps an open connection.
func NewPostgresStore(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresStore{db: db, timeout: timeout}
}

// Account implements Store.
func (s *PostgresStore) Account(ctx context.Context, id int64) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row accountRow
	if err := s.db.GetContext(ctx, &row, accountQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
		}
		return Account{}, fmt.Errorf("failed to load account %d: %w", id, err)
	}

	acct := Account{
		ID:             row.ID,
		ClientID:       row.ClientID,
		SecretName:     row.SecretName,
		AssigneeUserID: row.AssigneeUserID.Int64,
	}
	if row.GuidelinePct.Valid && row.GuidelinePct.String != "" {
		pct, err := decimal.NewFromString(row.GuidelinePct.String)
		if err != nil {
			return Account{}, fmt.Errorf("account %d guideline_pct: %w", id, err)
		}
		acct.GuidelinePct = &pct
	}
	return acct, nil
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

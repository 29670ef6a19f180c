package events

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresSink archives every event to a Postgres table for wallet
// reconciliation and chain-history queries, the way the teacher's
// ConsensusRepository archived attestation state over a pooled *sql.DB.
// It is optional: constructed only when a DSN is configured.
type PostgresSink struct {
	db     *sql.DB
	logger *log.Logger
}

// NewPostgresSink opens dsn, runs pending migrations, and returns a sink.
// Returns an error (never a fatal process exit) so callers can decide
// whether an archival sink is required.
func NewPostgresSink(dsn string) (*PostgresSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("events: postgres DSN is empty")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("events: opening postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("events: pinging postgres: %w", err)
	}

	sink := &PostgresSink{db: db, logger: log.New(log.Writer(), "[events/postgres] ", log.LstdFlags)}
	if err := sink.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return sink, nil
}

// migrate applies every migrations/*.sql file in lexical order inside a
// single transaction, tracked in a schema_migrations table.
func (s *PostgresSink) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return fmt.Errorf("events: creating schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("events: reading embedded migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var applied bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&applied); err != nil {
			return fmt.Errorf("events: checking migration %s: %w", name, err)
		}
		if applied {
			continue
		}
		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("events: reading migration %s: %w", name, err)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("events: beginning migration tx: %w", err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			tx.Rollback()
			return fmt.Errorf("events: applying migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			tx.Rollback()
			return fmt.Errorf("events: recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("events: committing migration %s: %w", name, err)
		}
		s.logger.Printf("applied migration %s", name)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

func (s *PostgresSink) RecordSpend(e Spend) {
	s.exec(`INSERT INTO shielded_pool_events (event_id, kind, height, nullifier) VALUES ($1, 'spend', $2, $3)`,
		uuid.New(), e.Height, e.Nullifier.String())
}

func (s *PostgresSink) RecordQuarantineSpend(e QuarantineSpend) {
	s.exec(`INSERT INTO shielded_pool_events (event_id, kind, height, nullifier, epoch, validator) VALUES ($1, 'quarantine_spend', $2, $3, $4, $5)`,
		uuid.New(), e.Height, e.Nullifier.String(), e.Epoch, e.Validator)
}

func (s *PostgresSink) RecordSlashingApplied(e SlashingApplied) {
	s.exec(`INSERT INTO shielded_pool_events (event_id, kind, height, validator) VALUES ($1, 'slashing_applied', $2, $3)`,
		uuid.New(), e.Height, e.Validator)
}

func (s *PostgresSink) RecordNoteMinted(e NoteMinted) {
	amount := "0"
	if e.Amount != nil {
		amount = e.Amount.String()
	}
	s.exec(`INSERT INTO shielded_pool_events (event_id, kind, height, commitment, asset_id, amount, source_kind) VALUES ($1, 'note_minted', $2, $3, $4, $5, $6)`,
		uuid.New(), e.Height, e.Commitment.String(), e.AssetID.String(), amount, string(e.Source.Kind))
}

// exec runs a best-effort archival insert: a failure here must never
// abort block processing, so it is logged and swallowed.
func (s *PostgresSink) exec(query string, args ...interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.Printf("archival insert failed: %v", err)
	}
}

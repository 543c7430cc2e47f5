package db

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
	_ "modernc.org/sqlite"

	"resume-matcher/internal/models"
)

// ErrRunNotFound is returned when a run id has no stored record.
var ErrRunNotFound = errors.New("match run not found")

// MatchRun is one ranking request as recorded in history.
type MatchRun struct {
	bun.BaseModel  `bun:"table:match_runs,alias:r"`
	ID             string    `bun:"id,pk" json:"id"`
	CreatedAt      time.Time `bun:"created_at,notnull" json:"created_at"`
	ReferenceHash  string    `bun:"reference_hash,notnull" json:"reference_hash"`
	CandidateCount int       `bun:"candidate_count,notnull" json:"candidate_count"`
	VocabularySize int       `bun:"vocabulary_size,notnull" json:"vocabulary_size"`
	Scorer         string    `bun:"scorer" json:"scorer"`
}

// MatchEntry is one ranked candidate of a run. Position is 1-based.
type MatchEntry struct {
	bun.BaseModel `bun:"table:match_entries,alias:e"`
	ID            int64   `bun:"id,pk,autoincrement" json:"-"`
	RunID         string  `bun:"run_id,notnull" json:"run_id"`
	Position      int     `bun:"position,notnull" json:"position"`
	CandidateID   string  `bun:"candidate_id,notnull" json:"candidate_id"`
	Score         float64 `bun:"score,notnull" json:"score"`
}

// queryLog receives SQL traces when debug is on.
var queryLog io.Writer = os.Stderr

// NewDB wraps sqldb in bun. With debug off no query, failed or not, is traced.
func NewDB(sqldb *sql.DB, dialect schema.Dialect, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, dialect)
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true), bundebug.WithWriter(queryLog)))
	}
	return db
}

// ConnectDB opens a connection for the named driver:
//
//	postgres  bun's pgdriver
//	pq        lib/pq through database/sql
//	sqlite    modernc.org/sqlite, pure Go
func ConnectDB(driver, dsn string) (*sql.DB, schema.Dialect, error) {
	switch driver {
	case "postgres", "pgdriver":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), pgdialect.New(), nil
	case "pq":
		sqldb, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres database: %w", err)
		}
		return sqldb, pgdialect.New(), nil
	case "sqlite", "":
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite database: %w", err)
		}
		if strings.Contains(dsn, ":memory:") {
			// Every new connection would see its own empty in-memory database.
			sqldb.SetMaxOpenConns(1)
		}
		return sqldb, sqlitedialect.New(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open connects, pings and creates the history tables.
func Open(ctx context.Context, driver, dsn string, debug bool) (*bun.DB, error) {
	sqldb, dialect, err := ConnectDB(driver, dsn)
	if err != nil {
		return nil, err
	}
	db := NewDB(sqldb, dialect, debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	return db, nil
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().Model((*MatchRun)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	if _, err := db.NewCreateTable().Model((*MatchEntry)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewCreateIndex().
		Model((*MatchEntry)(nil)).
		Index("match_entries_run_id_idx").
		Column("run_id").
		IfNotExists().
		Exec(ctx)
	return err
}

// DropHistory removes both history tables.
func DropHistory(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewDropTable().Model((*MatchEntry)(nil)).IfExists().Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewDropTable().Model((*MatchRun)(nil)).IfExists().Exec(ctx)
	return err
}

// Store records and reads back ranking runs.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Record stores a finished ranking. The reference text itself is not kept,
// only its SHA-256.
func (s *Store) Record(ctx context.Context, reference, scorer string, result *models.MatchResult) error {
	sum := sha256.Sum256([]byte(reference))
	run := &MatchRun{
		ID:             result.RunID,
		CreatedAt:      time.Now().UTC(),
		ReferenceHash:  hex.EncodeToString(sum[:]),
		CandidateCount: result.CandidateCount,
		VocabularySize: result.VocabularySize,
		Scorer:         scorer,
	}
	entries := make([]MatchEntry, len(result.Ranked))
	for i, c := range result.Ranked {
		entries[i] = MatchEntry{RunID: run.ID, Position: i + 1, CandidateID: c.ID, Score: c.Score}
	}
	return s.SaveRun(ctx, run, entries)
}

// SaveRun inserts a run and its entries in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *MatchRun, entries []MatchEntry) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(run).Exec(ctx); err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&entries).Exec(ctx); err != nil {
			return fmt.Errorf("inserting entries: %w", err)
		}
		return nil
	})
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]MatchRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []MatchRun
	err := s.db.NewSelect().
		Model(&runs).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	return runs, err
}

// GetRun returns one run with its entries in rank order.
func (s *Store) GetRun(ctx context.Context, id string) (*MatchRun, []MatchEntry, error) {
	run := new(MatchRun)
	err := s.db.NewSelect().Model(run).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrRunNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	var entries []MatchEntry
	err = s.db.NewSelect().
		Model(&entries).
		Where("run_id = ?", id).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, nil, err
	}
	return run, entries, nil
}

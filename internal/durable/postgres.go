package durable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresSectionTableName = "docsync_sections"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresSectionStore persists snapshots in a single Postgres table. The
// schema is created lazily on first use; all operations carry their own
// timeout on top of the caller's context.
type PostgresSectionStore struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresSectionStore(dsn string) (*PostgresSectionStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresSectionStore{
		dsn:       dsn,
		tableName: postgresSectionTableName,
		openDB:    sql.Open,
	}, nil
}

func (s *PostgresSectionStore) GetSectionContent(ctx context.Context, sectionID string) (Snapshot, error) {
	sectionID = strings.TrimSpace(sectionID)
	if sectionID == "" {
		return Snapshot{}, ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return Snapshot{}, err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(
		`SELECT content, revision, updated_at FROM %s WHERE section_id = $1`,
		postgresQuoteIdentifier(s.tableName),
	)
	var (
		content   []byte
		revision  int64
		updatedAt time.Time
	)
	err := s.db.QueryRowContext(opCtx, query, sectionID).Scan(&content, &revision, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("%w: section %s", ErrNotFound, sectionID)
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		SectionID: sectionID,
		Content:   content,
		Revision:  fmt.Sprintf("rev_%d", revision),
		UpdatedAt: updatedAt.UTC(),
	}, nil
}

func (s *PostgresSectionStore) UpsertSectionContent(ctx context.Context, sectionID string, content []byte) error {
	sectionID = strings.TrimSpace(sectionID)
	if sectionID == "" {
		return ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (section_id, content, revision, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (section_id) DO UPDATE
		SET content = EXCLUDED.content,
		    revision = %s.revision + 1,
		    updated_at = NOW()`,
		postgresQuoteIdentifier(s.tableName),
		postgresQuoteIdentifier(s.tableName),
	)
	_, err := s.db.ExecContext(opCtx, query, sectionID, content)
	return err
}

func (s *PostgresSectionStore) ListSections(ctx context.Context) ([]Snapshot, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(
		`SELECT section_id, content, revision, updated_at FROM %s ORDER BY section_id`,
		postgresQuoteIdentifier(s.tableName),
	)
	rows, err := s.db.QueryContext(opCtx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			snapshot  Snapshot
			revision  int64
			updatedAt time.Time
		)
		if err := rows.Scan(&snapshot.SectionID, &snapshot.Content, &revision, &updatedAt); err != nil {
			return nil, err
		}
		snapshot.Revision = fmt.Sprintf("rev_%d", revision)
		snapshot.UpdatedAt = updatedAt.UTC()
		out = append(out, snapshot)
	}
	return out, rows.Err()
}

func (s *PostgresSectionStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresSectionStore) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				section_id TEXT PRIMARY KEY,
				content BYTEA NOT NULL,
				revision BIGINT NOT NULL DEFAULT 1,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, postgresQuoteIdentifier(s.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

func postgresQuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

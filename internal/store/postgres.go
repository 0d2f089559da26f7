package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/emotion-memory/internal/model"
)

// PostgresBackend implements Backend on PostgreSQL via pgx.
type PostgresBackend struct {
	pool  *pgxpool.Pool
	dsn   string
	codec Codec
}

var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS memories (
		id                TEXT PRIMARY KEY,
		seq               BIGINT NOT NULL,
		content           TEXT NOT NULL,
		memory_type       TEXT NOT NULL,
		emotional_context TEXT NOT NULL,
		importance_score  DOUBLE PRECISION NOT NULL,
		access_count      INTEGER NOT NULL DEFAULT 0,
		last_accessed     TIMESTAMPTZ NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL,
		tags              TEXT,
		related_memories  TEXT,
		user_feedback     TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_seq ON memories(seq)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type)`,
	`CREATE TABLE IF NOT EXISTS patterns (
		pattern_id             TEXT PRIMARY KEY,
		seq                    BIGINT NOT NULL,
		pattern_type           TEXT NOT NULL,
		frequency              INTEGER NOT NULL DEFAULT 1,
		emotional_context      TEXT NOT NULL,
		confidence             DOUBLE PRECISION NOT NULL,
		last_observed          TIMESTAMPTZ NOT NULL,
		adaptation_suggestions TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_patterns_seq ON patterns(seq)`,
	`CREATE TABLE IF NOT EXISTS emotional_history (
		id                BIGSERIAL PRIMARY KEY,
		memory_id         TEXT,
		recorded_at       TIMESTAMPTZ NOT NULL,
		emotional_context TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS learning_moments (
		seq         BIGSERIAL,
		id          TEXT PRIMARY KEY,
		recorded_at TIMESTAMPTZ NOT NULL,
		payload     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// NewPostgresBackend connects to PostgreSQL and applies the schema.
func NewPostgresBackend(ctx context.Context, dsn string, opts Options) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, storageErr("open", fmt.Errorf("postgres: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storageErr("open", fmt.Errorf("postgres ping: %w", err))
	}

	s := &PostgresBackend{pool: pool, dsn: dsn}
	for _, stmt := range pgSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, storageErr("migrate", err)
		}
	}

	s.codec, err = openCodec(s, opts)
	if err != nil {
		pool.Close()
		return nil, storageErr("open codec", err)
	}
	return s, nil
}

func (s *PostgresBackend) getSetting(key string) (string, bool, error) {
	var v string
	err := s.pool.QueryRow(context.Background(), `SELECT value FROM settings WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *PostgresBackend) setSetting(key, value string) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	return err
}

func (s *PostgresBackend) Name() string { return "postgres" }

// Location returns the DSN with any password redacted.
func (s *PostgresBackend) Location() string {
	u, err := url.Parse(s.dsn)
	if err != nil || u.Scheme == "" {
		return "postgres"
	}
	return u.Redacted()
}

func (s *PostgresBackend) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		snap.Memories, err = s.loadMemories(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Patterns, err = s.loadPatterns(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Learning, err = s.loadLearning(gctx)
		return err
	})
	g.Go(func() error {
		return s.pool.QueryRow(gctx, `SELECT COUNT(*) FROM emotional_history`).Scan(&snap.HistoryCount)
	})

	if err := g.Wait(); err != nil {
		return nil, storageErr("load", err)
	}
	return snap, nil
}

func (s *PostgresBackend) loadMemories(ctx context.Context) ([]model.MemoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, content, memory_type, emotional_context, importance_score, access_count,
		        last_accessed, created_at, COALESCE(tags, ''), COALESCE(related_memories, ''),
		        COALESCE(user_feedback, '')
		 FROM memories ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []model.MemoryEntry
	for rows.Next() {
		var m model.MemoryEntry
		var cols memoryCols
		var memType string
		err := rows.Scan(&m.ID, &cols.content, &memType, &cols.emotion, &m.ImportanceScore,
			&m.AccessCount, &m.LastAccessed, &m.CreatedAt, &cols.tags, &cols.related, &cols.feedback)
		if err != nil {
			return nil, err
		}
		m.MemoryType = model.MemoryType(memType)
		m.LastAccessed = m.LastAccessed.UTC()
		m.CreatedAt = m.CreatedAt.UTC()
		if err := decodeMemory(s.codec, cols, &m); err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func (s *PostgresBackend) loadPatterns(ctx context.Context) ([]model.MemoryPattern, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pattern_id, pattern_type, frequency, emotional_context, confidence,
		        last_observed, COALESCE(adaptation_suggestions, '')
		 FROM patterns ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []model.MemoryPattern
	for rows.Next() {
		var p model.MemoryPattern
		var cols patternCols
		err := rows.Scan(&p.PatternID, &p.PatternType, &p.Frequency, &cols.emotion,
			&p.Confidence, &p.LastObserved, &cols.suggestions)
		if err != nil {
			return nil, err
		}
		p.LastObserved = p.LastObserved.UTC()
		if err := decodePattern(s.codec, cols, &p); err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func (s *PostgresBackend) loadLearning(ctx context.Context) ([]model.LearningMoment, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload FROM learning_moments ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var moments []model.LearningMoment
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var lm model.LearningMoment
		if err := decodeJSON(s.codec, payload, &lm); err != nil {
			return nil, fmt.Errorf("decode learning moment: %w", err)
		}
		moments = append(moments, lm)
	}
	return moments, rows.Err()
}

func (s *PostgresBackend) Commit(ctx context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageErr("commit", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range b.Memories {
		cols, err := encodeMemory(s.codec, m)
		if err != nil {
			return storageErr("commit", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO memories (id, seq, content, memory_type, emotional_context, importance_score,
			                       access_count, last_accessed, created_at, tags, related_memories, user_feedback)
			 VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM memories), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (id) DO UPDATE SET
			   content = EXCLUDED.content,
			   memory_type = EXCLUDED.memory_type,
			   emotional_context = EXCLUDED.emotional_context,
			   importance_score = EXCLUDED.importance_score,
			   access_count = EXCLUDED.access_count,
			   last_accessed = EXCLUDED.last_accessed,
			   tags = EXCLUDED.tags,
			   related_memories = EXCLUDED.related_memories,
			   user_feedback = EXCLUDED.user_feedback`,
			m.ID, cols.content, string(m.MemoryType), cols.emotion, m.ImportanceScore,
			m.AccessCount, m.LastAccessed.UTC(), m.CreatedAt.UTC(), cols.tags, cols.related, cols.feedback)
		if err != nil {
			return storageErr("commit", fmt.Errorf("upsert memory %s: %w", m.ID, err))
		}
	}

	for _, p := range b.Patterns {
		cols, err := encodePattern(s.codec, p)
		if err != nil {
			return storageErr("commit", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO patterns (pattern_id, seq, pattern_type, frequency, emotional_context,
			                       confidence, last_observed, adaptation_suggestions)
			 VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM patterns), $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (pattern_id) DO UPDATE SET
			   pattern_type = EXCLUDED.pattern_type,
			   frequency = EXCLUDED.frequency,
			   emotional_context = EXCLUDED.emotional_context,
			   confidence = EXCLUDED.confidence,
			   last_observed = EXCLUDED.last_observed,
			   adaptation_suggestions = EXCLUDED.adaptation_suggestions`,
			p.PatternID, p.PatternType, p.Frequency, cols.emotion, p.Confidence,
			p.LastObserved.UTC(), cols.suggestions)
		if err != nil {
			return storageErr("commit", fmt.Errorf("upsert pattern %s: %w", p.PatternID, err))
		}
	}

	for _, h := range b.History {
		payload, err := encodeJSON(s.codec, h.EmotionalContext)
		if err != nil {
			return storageErr("commit", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO emotional_history (memory_id, recorded_at, emotional_context) VALUES ($1, $2, $3)`,
			h.MemoryID, recordedAt(h.EmotionalContext.Timestamp), payload)
		if err != nil {
			return storageErr("commit", fmt.Errorf("insert history: %w", err))
		}
	}

	for _, lm := range b.Learning {
		payload, err := encodeJSON(s.codec, lm)
		if err != nil {
			return storageErr("commit", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO learning_moments (id, recorded_at, payload) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO NOTHING`,
			lm.ID, recordedAt(lm.Timestamp), payload)
		if err != nil {
			return storageErr("commit", fmt.Errorf("insert learning moment: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

func recordedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func (s *PostgresBackend) Close() error {
	s.pool.Close()
	return nil
}

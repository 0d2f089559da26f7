package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/rcliao/emotion-memory/internal/model"
)

const timeFormat = time.RFC3339Nano

// SQLiteBackend implements Backend using SQLite.
type SQLiteBackend struct {
	db    *sql.DB
	path  string
	codec Codec
}

// NewSQLiteBackend opens or creates a SQLite database at the given path.
func NewSQLiteBackend(dbPath string, opts Options) (*SQLiteBackend, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storageErr("open", fmt.Errorf("create db dir: %w", err))
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, storageErr("open", err)
	}

	s := &SQLiteBackend{db: db, path: dbPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, storageErr("migrate", err)
	}

	s.codec, err = openCodec(s, opts)
	if err != nil {
		db.Close()
		return nil, storageErr("open codec", err)
	}

	return s, nil
}

func (s *SQLiteBackend) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id                TEXT PRIMARY KEY,
		seq               INTEGER NOT NULL,
		content           TEXT NOT NULL,
		memory_type       TEXT NOT NULL,
		emotional_context TEXT NOT NULL,
		importance_score  REAL NOT NULL,
		access_count      INTEGER NOT NULL DEFAULT 0,
		last_accessed     TEXT NOT NULL,
		created_at        TEXT NOT NULL,
		tags              TEXT,
		related_memories  TEXT,
		user_feedback     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memories_seq ON memories(seq);
	CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);

	CREATE TABLE IF NOT EXISTS patterns (
		pattern_id             TEXT PRIMARY KEY,
		seq                    INTEGER NOT NULL,
		pattern_type           TEXT NOT NULL,
		frequency              INTEGER NOT NULL DEFAULT 1,
		emotional_context      TEXT NOT NULL,
		confidence             REAL NOT NULL,
		last_observed          TEXT NOT NULL,
		adaptation_suggestions TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_seq ON patterns(seq);

	CREATE TABLE IF NOT EXISTS emotional_history (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		memory_id         TEXT,
		recorded_at       TEXT NOT NULL,
		emotional_context TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS learning_moments (
		id          TEXT PRIMARY KEY,
		recorded_at TEXT NOT NULL,
		payload     TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteBackend) getSetting(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *SQLiteBackend) setSetting(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *SQLiteBackend) Name() string     { return "sqlite" }
func (s *SQLiteBackend) Location() string { return s.path }

// Load reads memories, patterns, learning moments and the history count
// concurrently.
func (s *SQLiteBackend) Load(ctx context.Context) (*Snapshot, error) {
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
		return s.db.QueryRowContext(gctx, `SELECT COUNT(*) FROM emotional_history`).Scan(&snap.HistoryCount)
	})

	if err := g.Wait(); err != nil {
		return nil, storageErr("load", err)
	}
	return snap, nil
}

func (s *SQLiteBackend) loadMemories(ctx context.Context) ([]model.MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, memory_type, emotional_context, importance_score, access_count,
		        last_accessed, created_at, tags, related_memories, user_feedback
		 FROM memories ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []model.MemoryEntry
	for rows.Next() {
		var m model.MemoryEntry
		var cols memoryCols
		var memType, lastAccessed, createdAt string
		var tags, related, feedback sql.NullString

		err := rows.Scan(&m.ID, &cols.content, &memType, &cols.emotion, &m.ImportanceScore,
			&m.AccessCount, &lastAccessed, &createdAt, &tags, &related, &feedback)
		if err != nil {
			return nil, err
		}
		m.MemoryType = model.MemoryType(memType)
		// Unreadable times load as zero; the memory layer defaults them.
		m.LastAccessed, _ = time.Parse(timeFormat, lastAccessed)
		m.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		cols.tags, cols.related, cols.feedback = tags.String, related.String, feedback.String

		if err := decodeMemory(s.codec, cols, &m); err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func (s *SQLiteBackend) loadPatterns(ctx context.Context) ([]model.MemoryPattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern_id, pattern_type, frequency, emotional_context, confidence,
		        last_observed, adaptation_suggestions
		 FROM patterns ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []model.MemoryPattern
	for rows.Next() {
		var p model.MemoryPattern
		var cols patternCols
		var lastObserved string
		var suggestions sql.NullString

		err := rows.Scan(&p.PatternID, &p.PatternType, &p.Frequency, &cols.emotion,
			&p.Confidence, &lastObserved, &suggestions)
		if err != nil {
			return nil, err
		}
		p.LastObserved, _ = time.Parse(timeFormat, lastObserved)
		cols.suggestions = suggestions.String

		if err := decodePattern(s.codec, cols, &p); err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func (s *SQLiteBackend) loadLearning(ctx context.Context) ([]model.LearningMoment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM learning_moments ORDER BY rowid`)
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

// Commit writes the batch in one transaction.
func (s *SQLiteBackend) Commit(ctx context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("commit", err)
	}
	defer tx.Rollback()

	for _, m := range b.Memories {
		cols, err := encodeMemory(s.codec, m)
		if err != nil {
			return storageErr("commit", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO memories (id, seq, content, memory_type, emotional_context, importance_score,
			                       access_count, last_accessed, created_at, tags, related_memories, user_feedback)
			 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM memories), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   content = excluded.content,
			   memory_type = excluded.memory_type,
			   emotional_context = excluded.emotional_context,
			   importance_score = excluded.importance_score,
			   access_count = excluded.access_count,
			   last_accessed = excluded.last_accessed,
			   tags = excluded.tags,
			   related_memories = excluded.related_memories,
			   user_feedback = excluded.user_feedback`,
			m.ID, cols.content, string(m.MemoryType), cols.emotion, m.ImportanceScore,
			m.AccessCount, m.LastAccessed.UTC().Format(timeFormat), m.CreatedAt.UTC().Format(timeFormat),
			cols.tags, cols.related, cols.feedback)
		if err != nil {
			return storageErr("commit", fmt.Errorf("upsert memory %s: %w", m.ID, err))
		}
	}

	for _, p := range b.Patterns {
		cols, err := encodePattern(s.codec, p)
		if err != nil {
			return storageErr("commit", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO patterns (pattern_id, seq, pattern_type, frequency, emotional_context,
			                       confidence, last_observed, adaptation_suggestions)
			 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM patterns), ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(pattern_id) DO UPDATE SET
			   pattern_type = excluded.pattern_type,
			   frequency = excluded.frequency,
			   emotional_context = excluded.emotional_context,
			   confidence = excluded.confidence,
			   last_observed = excluded.last_observed,
			   adaptation_suggestions = excluded.adaptation_suggestions`,
			p.PatternID, p.PatternType, p.Frequency, cols.emotion, p.Confidence,
			p.LastObserved.UTC().Format(timeFormat), cols.suggestions)
		if err != nil {
			return storageErr("commit", fmt.Errorf("upsert pattern %s: %w", p.PatternID, err))
		}
	}

	for _, h := range b.History {
		payload, err := encodeJSON(s.codec, h.EmotionalContext)
		if err != nil {
			return storageErr("commit", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO emotional_history (memory_id, recorded_at, emotional_context) VALUES (?, ?, ?)`,
			h.MemoryID, h.EmotionalContext.Timestamp.UTC().Format(timeFormat), payload)
		if err != nil {
			return storageErr("commit", fmt.Errorf("insert history: %w", err))
		}
	}

	for _, lm := range b.Learning {
		payload, err := encodeJSON(s.codec, lm)
		if err != nil {
			return storageErr("commit", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO learning_moments (id, recorded_at, payload) VALUES (?, ?, ?)`,
			lm.ID, lm.Timestamp.UTC().Format(timeFormat), payload)
		if err != nil {
			return storageErr("commit", fmt.Errorf("insert learning moment: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

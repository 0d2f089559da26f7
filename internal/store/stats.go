package store

import (
	"context"
	"os"
)

// Stats holds backend statistics.
type Stats struct {
	Backend         string      `json:"backend"`
	Location        string      `json:"location"`
	SizeBytes       int64       `json:"size_bytes,omitempty"`
	TotalMemories   int         `json:"total_memories"`
	TotalPatterns   int         `json:"total_patterns"`
	LearningMoments int         `json:"learning_moments"`
	HistoryRecords  int         `json:"history_records"`
	MemoryTypes     []TypeCount `json:"memory_types"`
}

// TypeCount holds the number of memories of one type.
type TypeCount struct {
	MemoryType string `json:"memory_type"`
	Count      int    `json:"count"`
}

const typeCountsQuery = `
	SELECT memory_type, COUNT(*) AS cnt
	FROM memories
	GROUP BY memory_type ORDER BY cnt DESC, memory_type`

// Stats returns row counts straight from the database.
func (s *SQLiteBackend) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Backend: s.Name(), Location: s.path}
	if info, err := os.Stat(s.path); err == nil {
		st.SizeBytes = info.Size()
	}

	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM memories`, &st.TotalMemories},
		{`SELECT COUNT(*) FROM patterns`, &st.TotalPatterns},
		{`SELECT COUNT(*) FROM learning_moments`, &st.LearningMoments},
		{`SELECT COUNT(*) FROM emotional_history`, &st.HistoryRecords},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, storageErr("stats", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, typeCountsQuery)
	if err != nil {
		return nil, storageErr("stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.MemoryType, &tc.Count); err != nil {
			return nil, storageErr("stats", err)
		}
		st.MemoryTypes = append(st.MemoryTypes, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("stats", err)
	}
	return st, nil
}

// Stats returns row counts straight from the database.
func (s *PostgresBackend) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Backend: s.Name(), Location: s.Location()}
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM memories), (SELECT COUNT(*) FROM patterns),
		        (SELECT COUNT(*) FROM learning_moments), (SELECT COUNT(*) FROM emotional_history),
		        pg_database_size(current_database())`).
		Scan(&st.TotalMemories, &st.TotalPatterns, &st.LearningMoments, &st.HistoryRecords, &st.SizeBytes)
	if err != nil {
		return nil, storageErr("stats", err)
	}

	rows, err := s.pool.Query(ctx, typeCountsQuery)
	if err != nil {
		return nil, storageErr("stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.MemoryType, &tc.Count); err != nil {
			return nil, storageErr("stats", err)
		}
		st.MemoryTypes = append(st.MemoryTypes, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("stats", err)
	}
	return st, nil
}

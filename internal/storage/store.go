package storage

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Cache kinds stored in the analysis cache.
const (
	KindDetection   = "detection"
	KindSellability = "sellability"
)

// AnalysisCacheEntry is a cached LLM analysis result. Payload is the JSON the
// analyzer produced.
type AnalysisCacheEntry struct {
	Kind      string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// AnalysisCache persists analysis results keyed by content hash.
type AnalysisCache interface {
	GetAnalysis(kind, key string) (*AnalysisCacheEntry, error)
	SetAnalysis(kind, key string, payload []byte) error
	PruneAnalysis(olderThan time.Duration) (int64, error)
	Close() error
}

// SQLiteStore implements AnalysisCache on top of SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the cache database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Configure SQLite with WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", dbPath).Msg("failed to restrict cache database permissions")
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS analysis_cache (
		kind TEXT NOT NULL,
		cache_key TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (kind, cache_key)
	);
	CREATE INDEX IF NOT EXISTS idx_analysis_cache_created_at ON analysis_cache(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create analysis_cache table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetAnalysis retrieves a cached result. Returns nil, nil on a miss.
func (s *SQLiteStore) GetAnalysis(kind, key string) (*AnalysisCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry := AnalysisCacheEntry{Kind: kind, Key: key}
	err := s.db.QueryRow(
		"SELECT payload, created_at FROM analysis_cache WHERE kind = ? AND cache_key = ?",
		kind, key,
	).Scan(&entry.Payload, &entry.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis cache: %w", err)
	}
	return &entry, nil
}

// SetAnalysis stores a result, replacing any previous entry for the key.
func (s *SQLiteStore) SetAnalysis(kind, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO analysis_cache (kind, cache_key, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, cache_key) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at
	`, kind, key, payload, time.Now().UTC())

	if err != nil {
		return fmt.Errorf("failed to cache analysis result: %w", err)
	}
	return nil
}

// PruneAnalysis deletes entries older than olderThan and returns how many
// were removed.
func (s *SQLiteStore) PruneAnalysis(olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.Exec("DELETE FROM analysis_cache WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune analysis cache: %w", err)
	}
	return res.RowsAffected()
}

// Package cache stores compiled programs in SQLite, keyed by the hash of
// their source text.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chazu/curly/vm"
	"github.com/tliron/commonlog"

	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("curly.cache")

// ErrNotFound indicates no program is cached under the requested hash.
var ErrNotFound = errors.New("program not cached")

// Memory is the path that opens a private in-memory cache.
const Memory = ":memory:"

// Cache is a program store backed by a single SQLite table. It is safe
// for concurrent use.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries int
	Bytes   int64
	Hits    int64
}

// Open opens or creates the cache database at path, creating parent
// directories as needed.
func Open(path string) (*Cache, error) {
	if path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		hash       TEXT PRIMARY KEY,
		image      BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		hits       INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened %s", path)
	return &Cache{db: db, path: path}, nil
}

// Path returns the database path the cache was opened with.
func (c *Cache) Path() string {
	return c.path
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get returns the program cached under hash, or ErrNotFound.
func (c *Cache) Get(hash string) (*vm.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	err := c.db.QueryRow("SELECT image FROM programs WHERE hash = ?", hash).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying program: %w", err)
	}

	img, err := vm.UnmarshalImage(data)
	if err != nil {
		return nil, fmt.Errorf("cached program %s: %w", short(hash), err)
	}
	if img.SourceHash != hash {
		return nil, fmt.Errorf("cached program %s: image is for source %s", short(hash), short(img.SourceHash))
	}

	if _, err := c.db.Exec("UPDATE programs SET hits = hits + 1 WHERE hash = ?", hash); err != nil {
		log.Warningf("counting hit for %s: %s", short(hash), err)
	}
	log.Debugf("hit %s", short(hash))
	return img.Program, nil
}

// Put stores prog under hash, replacing any previous entry.
func (c *Cache) Put(hash string, prog *vm.Program) error {
	data, err := vm.MarshalImage(prog, hash)
	if err != nil {
		return fmt.Errorf("encoding program: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO programs (hash, image, created_at, hits) VALUES (?, ?, ?, 0)",
		hash, data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving program: %w", err)
	}
	log.Debugf("stored %s (%d bytes)", short(hash), len(data))
	return nil
}

// Stats reports the number of entries, their total image size and the
// number of hits served.
func (c *Cache) Stats() (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s Stats
	err := c.db.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(LENGTH(image)), 0), COALESCE(SUM(hits), 0) FROM programs",
	).Scan(&s.Entries, &s.Bytes, &s.Hits)
	if err != nil {
		return Stats{}, fmt.Errorf("querying stats: %w", err)
	}
	return s, nil
}

// Purge deletes every entry and returns how many were removed.
func (c *Cache) Purge() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec("DELETE FROM programs")
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	log.Infof("purged %d programs", n)
	return n, nil
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

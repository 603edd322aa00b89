// Package lookupcache keeps registration lookups in SQLite so repeated scans
// of mail from the same domain do not spend provider quota.
package lookupcache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/raysh454/mailtrust/internal/aggregator"
	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/utils"
)

//go:embed schema.sql
var schemaFS embed.FS

const DefaultTTL = 24 * time.Hour

type Config struct {
	Enabled bool `yaml:"enabled"`

	// Path of the SQLite file; ":memory:" keeps the cache in process.
	Path string        `yaml:"path"`
	TTL  time.Duration `yaml:"ttl"`
}

// Cache stores registration records with a fetch timestamp.
type Cache struct {
	db     *sql.DB
	ownsDB bool
	ttl    time.Duration
	now    func() time.Time
	logger logging.Logger
}

type Option func(*Cache)

// WithClock replaces the wall clock used to stamp and expire entries.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Open opens (creating if needed) the SQLite file at cfg.Path and applies the
// schema. The returned Cache owns the database and closes it on Close.
func Open(cfg Config, logger logging.Logger, opts ...Option) (*Cache, error) {
	path := cfg.Path
	if path == "" {
		return nil, errors.New("lookupcache: path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	c, err := New(db, cfg, logger, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.ownsDB = true
	return c, nil
}

// New applies the schema to db and returns a Cache over it.
func New(db *sql.DB, cfg Config, logger logging.Logger, opts ...Option) (*Cache, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if err := applySchema(db); err != nil {
		return nil, err
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		db:     db,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With(logging.Field{Key: "component", Value: "lookupcache"}),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Get returns the cached registration for domain if it has not expired.
func (c *Cache) Get(ctx context.Context, domain string) (*aggregator.Registration, bool, error) {
	var createDate string
	var fetchedAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT create_date, fetched_at FROM registrations WHERE domain = ?`,
		utils.NormalizeDomain(domain),
	).Scan(&createDate, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query registration: %w", err)
	}
	if c.now().Sub(time.Unix(fetchedAt, 0)) >= c.ttl {
		return nil, false, nil
	}
	return &aggregator.Registration{CreateDate: createDate}, true, nil
}

// Put stores reg for domain, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, domain string, reg *aggregator.Registration) error {
	if reg == nil {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO registrations (domain, create_date, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET create_date = excluded.create_date, fetched_at = excluded.fetched_at`,
		utils.NormalizeDomain(domain), reg.CreateDate, c.now().Unix())
	if err != nil {
		return fmt.Errorf("store registration: %w", err)
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.ttl).Unix()
	res, err := c.db.ExecContext(ctx, `DELETE FROM registrations WHERE fetched_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge registrations: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database if the Cache opened it.
func (c *Cache) Close() error {
	if c.ownsDB {
		return c.db.Close()
	}
	return nil
}

// Registrations decorates next with the cache. Provider errors are never
// cached; cache failures fall through to next.
func (c *Cache) Registrations(next aggregator.RegistrationProvider) aggregator.RegistrationProvider {
	return &cachedRegistrations{cache: c, next: next}
}

type cachedRegistrations struct {
	cache *Cache
	next  aggregator.RegistrationProvider
}

func (r *cachedRegistrations) LookupRegistration(ctx context.Context, domain string) (*aggregator.Registration, error) {
	reg, hit, err := r.cache.Get(ctx, domain)
	if err != nil {
		r.cache.logger.Warn("cache read failed", logging.Field{Key: "domain", Value: domain}, logging.Field{Key: "error", Value: err})
	}
	if hit {
		r.cache.logger.Debug("registration cache hit", logging.Field{Key: "domain", Value: domain})
		return reg, nil
	}

	reg, err = r.next.LookupRegistration(ctx, domain)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Put(ctx, domain, reg); err != nil {
		r.cache.logger.Warn("cache write failed", logging.Field{Key: "domain", Value: domain}, logging.Field{Key: "error", Value: err})
	}
	return reg, nil
}

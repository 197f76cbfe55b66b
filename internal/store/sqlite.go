package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultPollInterval is how often a SQLite store looks for writes made by
// other processes while someone is subscribed.
const DefaultPollInterval = time.Second

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
// Changes made through this handle are delivered immediately; changes made by
// other processes are picked up by polling.
type SQLiteStore struct {
	db           *sql.DB
	PollInterval time.Duration

	mu         sync.Mutex
	subs       subscribers
	snapshot   Values
	stopPoller context.CancelFunc
	pollerDone chan struct{}
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Immediate transactions take the write lock up front so a
	// read-modify-write cannot be upgraded into a deadlock.
	db, err := sql.Open("sqlite", dbPath+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes access from this process.
	db.SetMaxOpenConns(1)

	// Enable WAL mode so the daemon and foreground commands can read concurrently
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db, PollInterval: DefaultPollInterval}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close stops change polling and closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	stop, done := s.stopPoller, s.pollerDone
	s.stopPoller, s.pollerDone = nil, nil
	s.mu.Unlock()
	if stop != nil {
		stop()
		<-done
	}
	return s.db.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func readKeys(ctx context.Context, q queryer, keys []string) (Values, error) {
	var rows *sql.Rows
	var err error
	if len(keys) == 0 {
		rows, err = q.QueryContext(ctx, "SELECT key, value FROM kv")
	} else {
		args := make([]any, len(keys))
		for i, k := range keys {
			args[i] = k
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
		rows, err = q.QueryContext(ctx, "SELECT key, value FROM kv WHERE key IN ("+placeholders+")", args...)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := Values{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan kv: %w", err)
		}
		out[k] = json.RawMessage(v)
	}
	return out, rows.Err()
}

// Get returns the stored values for keys.
func (s *SQLiteStore) Get(ctx context.Context, keys ...string) (Values, error) {
	if len(keys) == 0 {
		return Values{}, nil
	}
	v, err := readKeys(ctx, s.db, keys)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w: %w", strings.Join(keys, ","), ErrStoreUnavailable, err)
	}
	return v, nil
}

// Set writes all values in a single transaction.
func (s *SQLiteStore) Set(ctx context.Context, values Values) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	return s.Update(ctx, keys, func(Values) (Values, error) { return values, nil })
}

// Update reads keys and writes fn's result inside one immediate transaction.
func (s *SQLiteStore) Update(ctx context.Context, keys []string, fn UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w: %w", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	current := Values{}
	if len(keys) > 0 {
		current, err = readKeys(ctx, tx, keys)
		if err != nil {
			return fmt.Errorf("read for update: %w: %w", ErrStoreUnavailable, err)
		}
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if len(next) == 0 {
		return nil
	}

	// Keys written by fn but not requested still need their old value for
	// change notification.
	var extra []string
	for k := range next {
		if _, ok := current[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		prev, err := readKeys(ctx, tx, extra)
		if err != nil {
			return fmt.Errorf("read for update: %w: %w", ErrStoreUnavailable, err)
		}
		for k, v := range prev {
			current[k] = v
		}
	}

	now := time.Now().UTC()
	for k, v := range next {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			k, string(v), now,
		); err != nil {
			return fmt.Errorf("write %s: %w: %w", k, ErrStoreUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w: %w", ErrStoreUnavailable, err)
	}

	s.publish(diff(current, next), next)
	return nil
}

// publish folds written values into the change snapshot and notifies
// subscribers.
func (s *SQLiteStore) publish(changes Changes, written Values) {
	s.mu.Lock()
	if s.snapshot != nil {
		for k, v := range written {
			s.snapshot[k] = v
		}
	}
	funcs := s.subs.snapshot()
	s.mu.Unlock()

	if len(changes) == 0 {
		return
	}
	for _, fn := range funcs {
		fn(changes)
	}
}

// OnChange registers fn. The first subscriber starts a poller that detects
// writes from other processes; the last one to cancel stops it.
func (s *SQLiteStore) OnChange(fn func(Changes)) (cancel func()) {
	s.mu.Lock()
	id := s.subs.add(fn)
	if s.stopPoller == nil {
		ctx, stop := context.WithCancel(context.Background())
		s.stopPoller = stop
		s.pollerDone = make(chan struct{})
		go s.poll(ctx, s.pollerDone)
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.subs.remove(id)
			var stop context.CancelFunc
			var done chan struct{}
			if len(s.subs.funcs) == 0 && s.stopPoller != nil {
				stop, done = s.stopPoller, s.pollerDone
				s.stopPoller, s.pollerDone = nil, nil
			}
			s.mu.Unlock()
			if stop != nil {
				stop()
				<-done
			}
		})
	}
}

func (s *SQLiteStore) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.mu.Lock()
	initial, err := readKeys(ctx, s.db, nil)
	if err != nil {
		initial = Values{}
	}
	s.snapshot = initial
	s.mu.Unlock()

	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.snapshot = nil
			s.mu.Unlock()
			return
		case <-ticker.C:
			// Holding mu across the read orders it with publish, so a local
			// write can never be overwritten by an older poll result.
			s.mu.Lock()
			current, err := readKeys(ctx, s.db, nil)
			if err != nil {
				// Transient; the next poll retries.
				s.mu.Unlock()
				continue
			}
			changes := diff(s.snapshot, current)
			s.snapshot = current
			funcs := s.subs.snapshot()
			s.mu.Unlock()
			if len(changes) == 0 {
				continue
			}
			for _, fn := range funcs {
				fn(changes)
			}
		}
	}
}

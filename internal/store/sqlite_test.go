package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

func TestGetSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.Get(ctx, KeyPhase, KeyRemainingSeconds)
	require.NoError(t, err)
	assert.Empty(t, got)

	err = s.Set(ctx, Values{
		KeyPhase:            json.RawMessage(`"running"`),
		KeyRemainingSeconds: json.RawMessage(`42`),
	})
	require.NoError(t, err)

	got, err = s.Get(ctx, KeyPhase, KeyRemainingSeconds, KeyBlocklist)
	require.NoError(t, err)
	assert.JSONEq(t, `"running"`, string(got[KeyPhase]))
	assert.JSONEq(t, `42`, string(got[KeyRemainingSeconds]))
	_, ok := got[KeyBlocklist]
	assert.False(t, ok, "missing keys are absent")

	// Overwrite
	require.NoError(t, s.Set(ctx, Values{KeyRemainingSeconds: json.RawMessage(`41`)}))
	got, err = s.Get(ctx, KeyRemainingSeconds)
	require.NoError(t, err)
	assert.JSONEq(t, `41`, string(got[KeyRemainingSeconds]))
}

func TestUpdate_ReadModifyWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, Values{KeyRemainingSeconds: json.RawMessage(`0`)}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, []string{KeyRemainingSeconds}, func(cur Values) (Values, error) {
				var n int
				if err := json.Unmarshal(cur[KeyRemainingSeconds], &n); err != nil {
					return nil, err
				}
				return Values{KeyRemainingSeconds: json.RawMessage(mustJSON(n + 1))}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, KeyRemainingSeconds)
	require.NoError(t, err)
	assert.JSONEq(t, `20`, string(got[KeyRemainingSeconds]))
}

func TestUpdate_ErrorWritesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, []string{KeyPhase}, func(Values) (Values, error) {
		return Values{KeyPhase: json.RawMessage(`"running"`)}, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Get(ctx, KeyPhase)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOnChange_LocalWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, Values{KeyPhase: json.RawMessage(`"idle"`)}))

	var mu sync.Mutex
	var seen []Changes
	cancel := s.OnChange(func(c Changes) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, c)
	})
	defer cancel()

	require.NoError(t, s.Set(ctx, Values{
		KeyPhase:            json.RawMessage(`"running"`),
		KeyRemainingSeconds: json.RawMessage(`10`),
	}))
	// Writing identical values produces no change.
	require.NoError(t, s.Set(ctx, Values{KeyPhase: json.RawMessage(`"running"`)}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.JSONEq(t, `"idle"`, string(seen[0][KeyPhase].Old))
	assert.JSONEq(t, `"running"`, string(seen[0][KeyPhase].New))
	assert.Nil(t, seen[0][KeyRemainingSeconds].Old)
}

func TestOnChange_OtherProcessWrite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "shared.db")
	ctx := context.Background()

	reader, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, reader.Migrate(ctx))
	defer reader.Close()
	reader.PollInterval = 20 * time.Millisecond

	writer, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer writer.Close()

	changes := make(chan Changes, 4)
	cancel := reader.OnChange(func(c Changes) { changes <- c })
	defer cancel()

	// Give the poller time to take its initial snapshot.
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, writer.Set(ctx, Values{KeyPhase: json.RawMessage(`"paused"`)}))

	select {
	case c := <-changes:
		assert.JSONEq(t, `"paused"`, string(c[KeyPhase].New))
	case <-time.After(2 * time.Second):
		t.Fatal("change from other handle was not observed")
	}
}

func TestGet_AfterClose(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "closed.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Close())

	_, err = s.Get(context.Background(), KeyPhase)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "etcd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}

func TestOpen_SQLite(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), Config{Driver: DriverSQLite, DBPath: filepath.Join(dir, "focus.db")})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(context.Background(), Values{KeyFocus: json.RawMessage(`true`)}))
}

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

// ErrStoreUnavailable wraps transient backend failures. Callers may retry or
// keep using their last in-memory value until the store recovers.
var ErrStoreUnavailable = errors.New("store unavailable")

// Values maps schema keys to JSON-encoded values.
type Values map[string]json.RawMessage

// Change is the before/after pair for a single key.
type Change struct {
	Old json.RawMessage
	New json.RawMessage
}

// Changes maps schema keys to their change.
type Changes map[string]Change

// UpdateFunc receives the current values of the requested keys and returns
// the values to write. Returning an empty map writes nothing.
type UpdateFunc func(current Values) (Values, error)

// Store is the key-value service shared by the background and foreground
// contexts. It is the only channel between them.
type Store interface {
	// Get returns the stored values for keys. Missing keys are absent from
	// the result.
	Get(ctx context.Context, keys ...string) (Values, error)

	// Set writes all values as one atomic update.
	Set(ctx context.Context, values Values) error

	// Update performs an atomic read-modify-write over keys. No other writer
	// can interleave between the read and the write.
	Update(ctx context.Context, keys []string, fn UpdateFunc) error

	// OnChange registers fn to receive changes, including those made by
	// other processes. The returned func unregisters it.
	OnChange(fn func(Changes)) (cancel func())

	Close() error
}

// diff returns the keys in next whose value differs from prev.
func diff(prev, next Values) Changes {
	changes := Changes{}
	for k, v := range next {
		old, ok := prev[k]
		if ok && bytes.Equal(old, v) {
			continue
		}
		changes[k] = Change{Old: old, New: v}
	}
	return changes
}

// subscribers is the callback registry shared by store implementations.
type subscribers struct {
	next  int
	funcs map[int]func(Changes)
}

func (s *subscribers) add(fn func(Changes)) int {
	if s.funcs == nil {
		s.funcs = make(map[int]func(Changes))
	}
	id := s.next
	s.next++
	s.funcs[id] = fn
	return id
}

func (s *subscribers) remove(id int) {
	delete(s.funcs, id)
}

func (s *subscribers) snapshot() []func(Changes) {
	out := make([]func(Changes), 0, len(s.funcs))
	for _, fn := range s.funcs {
		out = append(out, fn)
	}
	return out
}

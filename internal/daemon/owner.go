package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/joescharf/focus/internal/store"
)

// ErrOwnerHeld is returned when another live process holds the tick lease.
var ErrOwnerHeld = errors.New("tick owner held by another process")

// DefaultLeaseTTL is how long a lease stays valid without renewal.
const DefaultLeaseTTL = 15 * time.Second

// OwnerRecord is the persisted tick lease.
type OwnerRecord struct {
	ID          string `json:"id"`
	PID         int    `json:"pid"`
	RenewedAtMs int64  `json:"renewed_at_ms"`
}

// Owner is a tick lease stored under store.KeyTickOwner. It satisfies
// clock.Lease.
type Owner struct {
	store store.Store
	id    string
	TTL   time.Duration
	Now   func() time.Time
}

// NewOwner creates a lease handle with a fresh random id.
func NewOwner(s store.Store) *Owner {
	return &Owner{
		store: s,
		id:    uuid.NewString(),
		TTL:   DefaultLeaseTTL,
		Now:   time.Now,
	}
}

// ID returns this handle's owner id.
func (o *Owner) ID() string { return o.id }

// CurrentOwner reads the lease. ok is false when nobody has ever claimed it
// or it was released.
func CurrentOwner(ctx context.Context, s store.Store) (rec OwnerRecord, ok bool, err error) {
	v, err := s.Get(ctx, store.KeyTickOwner)
	if err != nil {
		return rec, false, err
	}
	return decodeOwner(v[store.KeyTickOwner])
}

func decodeOwner(raw json.RawMessage) (rec OwnerRecord, ok bool, err error) {
	if len(raw) == 0 || string(raw) == "null" {
		return rec, false, nil
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, false, fmt.Errorf("decode %s: %w", store.KeyTickOwner, err)
	}
	return rec, rec.ID != "", nil
}

// Live reports whether rec was renewed within ttl of now.
func (r OwnerRecord) Live(now time.Time, ttl time.Duration) bool {
	return now.UnixMilli()-r.RenewedAtMs < ttl.Milliseconds()
}

// Claim takes the lease unless another live owner holds it.
func (o *Owner) Claim(ctx context.Context) error {
	return o.write(ctx, "claim")
}

// Renew extends the lease. It fails with ErrOwnerHeld if another process
// took over after this one went stale.
func (o *Owner) Renew(ctx context.Context) error {
	return o.write(ctx, "renew")
}

func (o *Owner) write(ctx context.Context, op string) error {
	now := o.Now()
	err := o.store.Update(ctx, []string{store.KeyTickOwner}, func(cur store.Values) (store.Values, error) {
		rec, ok, err := decodeOwner(cur[store.KeyTickOwner])
		if err != nil {
			return nil, err
		}
		if ok && rec.ID != o.id && rec.Live(now, o.TTL) {
			return nil, fmt.Errorf("%w: %s (pid %d)", ErrOwnerHeld, rec.ID, rec.PID)
		}
		next := OwnerRecord{ID: o.id, PID: os.Getpid(), RenewedAtMs: now.UnixMilli()}
		data, err := json.Marshal(next)
		if err != nil {
			return nil, err
		}
		return store.Values{store.KeyTickOwner: data}, nil
	})
	if err != nil {
		return fmt.Errorf("%s tick lease: %w", op, err)
	}
	return nil
}

// Release clears the lease if this handle still holds it.
func (o *Owner) Release(ctx context.Context) error {
	return o.store.Update(ctx, []string{store.KeyTickOwner}, func(cur store.Values) (store.Values, error) {
		rec, ok, err := decodeOwner(cur[store.KeyTickOwner])
		if err != nil || !ok || rec.ID != o.id {
			return nil, err
		}
		return store.Values{store.KeyTickOwner: json.RawMessage("null")}, nil
	})
}

package blocklist

import (
	"context"

	"github.com/joescharf/focus/internal/store"
)

// Load reads the persisted block list.
func Load(ctx context.Context, s store.Store) ([]string, error) {
	v, err := s.Get(ctx, store.KeyBlocklist)
	if err != nil {
		return nil, err
	}
	return store.DecodeBlocklist(v[store.KeyBlocklist])
}

// Replace normalizes entries and stores them as the whole block list.
func Replace(ctx context.Context, s store.Store, entries []string) ([]string, error) {
	list, err := Dedupe(entries)
	if err != nil {
		return nil, err
	}
	if err := s.Set(ctx, store.Values{store.KeyBlocklist: store.EncodeBlocklist(list)}); err != nil {
		return nil, err
	}
	return list, nil
}

type editFunc func(domains []string, entry string) ([]string, bool, error)

func edit(ctx context.Context, s store.Store, entry string, fn editFunc) (list []string, changed bool, err error) {
	err = s.Update(ctx, []string{store.KeyBlocklist}, func(cur store.Values) (store.Values, error) {
		domains, err := store.DecodeBlocklist(cur[store.KeyBlocklist])
		if err != nil {
			return nil, err
		}
		list, changed, err = fn(domains, entry)
		if err != nil || !changed {
			list = domains
			return nil, err
		}
		return store.Values{store.KeyBlocklist: store.EncodeBlocklist(list)}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return list, changed, nil
}

// AddDomain adds entry to the persisted list in one atomic update.
func AddDomain(ctx context.Context, s store.Store, entry string) ([]string, bool, error) {
	return edit(ctx, s, entry, Add)
}

// RemoveDomain removes entry from the persisted list in one atomic update.
func RemoveDomain(ctx context.Context, s store.Store, entry string) ([]string, bool, error) {
	return edit(ctx, s, entry, Remove)
}

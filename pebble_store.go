package modguard

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Key prefixes for Pebble storage
const (
	// Descriptors: [0x01][mod_id:8] -> descriptor_json
	prefixDescriptor byte = 0x01
)

// DescriptorStore persists resolved mod descriptors across restarts.
// Only metadata is stored; verdicts never are.
type DescriptorStore interface {
	// Put saves d. An existing descriptor for the same id is kept.
	Put(ctx context.Context, d ModDescriptor) error

	// LoadAll returns every stored descriptor.
	LoadAll(ctx context.Context) ([]ModDescriptor, error)

	Close() error
}

// PebbleDescriptorStore implements DescriptorStore using Pebble.
type PebbleDescriptorStore struct {
	db *pebble.DB
}

// NewPebbleDescriptorStore opens (or creates) a store under path.
func NewPebbleDescriptorStore(path string) (*PebbleDescriptorStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble: %w", err)
	}
	return &PebbleDescriptorStore{db: db}, nil
}

// Close closes the Pebble database.
func (s *PebbleDescriptorStore) Close() error {
	return s.db.Close()
}

func makeDescriptorKey(id ModID) []byte {
	key := make([]byte, 9)
	key[0] = prefixDescriptor
	binary.BigEndian.PutUint64(key[1:], uint64(id))
	return key
}

// Put implements DescriptorStore.Put.
func (s *PebbleDescriptorStore) Put(ctx context.Context, d ModDescriptor) error {
	key := makeDescriptorKey(d.ID)

	_, closer, err := s.db.Get(key)
	if err == nil {
		closer.Close()
		return nil // descriptors are immutable
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return err
	}

	value, err := json.Marshal(&d)
	if err != nil {
		return fmt.Errorf("failed to marshal descriptor: %w", err)
	}
	return s.db.Set(key, value, pebble.Sync)
}

// Get returns the stored descriptor for id.
func (s *PebbleDescriptorStore) Get(id ModID) (ModDescriptor, bool, error) {
	value, closer, err := s.db.Get(makeDescriptorKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return ModDescriptor{}, false, nil
	}
	if err != nil {
		return ModDescriptor{}, false, err
	}
	defer closer.Close()

	var d ModDescriptor
	if err := json.Unmarshal(value, &d); err != nil {
		return ModDescriptor{}, false, fmt.Errorf("failed to unmarshal descriptor %d: %w", id, err)
	}
	return d, true, nil
}

// LoadAll implements DescriptorStore.LoadAll.
func (s *PebbleDescriptorStore) LoadAll(ctx context.Context) ([]ModDescriptor, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixDescriptor},
		UpperBound: []byte{prefixDescriptor + 1},
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []ModDescriptor
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var d ModDescriptor
		if err := json.Unmarshal(iter.Value(), &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal descriptor: %w", err)
		}
		out = append(out, d)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

// Package kv provides the key-value stores behind board persistence.
//
// A Store holds opaque byte values under string keys. Backends register a
// Constructor under a driver name from an init function, the same way
// database/sql drivers do:
//
//	func init() {
//	    kv.Register("sqlite", openStore)
//	}
//
// Callers pick a backend by name at runtime:
//
//	store, err := kv.Open(ctx, "sqlite", ".beadboard/board.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
// The memory and file drivers are built in. The sqlite, postgres and s3
// drivers live in sub-packages and are linked in with a blank import.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("key not found")

// ErrUnknownDriver is returned by Open for an unregistered driver name.
var ErrUnknownDriver = errors.New("unknown kv driver")

// Store is a durable key-value store.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the store's resources.
	Close() error
}

// Constructor opens a Store from a driver-specific data source name.
type Constructor func(ctx context.Context, dsn string) (Store, error)

var (
	registry      = make(map[string]Constructor)
	registryMutex sync.RWMutex
)

// Register makes a backend available under driver. It panics if the
// constructor is nil or the driver is registered twice.
func Register(driver string, constructor Constructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("kv: Register constructor is nil for driver %s", driver))
	}
	if _, exists := registry[driver]; exists {
		panic(fmt.Sprintf("kv: Register called twice for driver %s", driver))
	}

	registry[driver] = constructor
}

// Open opens a store using the named driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	registryMutex.RLock()
	constructor := registry[driver]
	registryMutex.RUnlock()

	if constructor == nil {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownDriver, driver, Drivers())
	}

	store, err := constructor(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}
	return store, nil
}

// IsRegistered returns true if a constructor is registered for driver.
func IsRegistered(driver string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, exists := registry[driver]
	return exists
}

// Drivers returns the registered driver names in sorted order.
func Drivers() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("memory", func(ctx context.Context, dsn string) (Store, error) {
		return NewMemory(), nil
	})
	Register("file", func(ctx context.Context, dsn string) (Store, error) {
		return OpenFile(dsn)
	})
}

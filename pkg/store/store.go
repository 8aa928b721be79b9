// Package store persists named collections of records as JSON documents.
//
// A collection is a flat JSON array of objects keyed by their id. Every
// mutation re-reads the whole document, applies the change and writes the
// full snapshot back while holding a lock shared by every Collection that
// resolves to the same underlying document. Reads are not locked; media
// replace documents atomically.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrNotExist is returned by a Medium when a collection has never been written.
var ErrNotExist = fs.ErrNotExist

// Record is any value with a unique string identifier.
type Record interface {
	RecordID() string
}

// Medium loads and saves raw collection documents.
type Medium interface {
	// Load returns the stored document. It returns an error wrapping
	// ErrNotExist when the collection does not exist yet.
	Load(ctx context.Context, name string) ([]byte, error)
	// Save replaces the stored document.
	Save(ctx context.Context, name string, data []byte) error
	// Identity names the underlying document; collections with the same
	// identity share a write lock.
	Identity(name string) string
	// Close releases resources.
	Close() error
}

// Arena hands out collections over a single Medium and owns their locks.
type Arena struct {
	medium Medium
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewArena creates an Arena over the given medium.
func NewArena(m Medium, logger *zap.Logger) *Arena {
	return &Arena{
		medium: m,
		logger: logger.With(zap.String("component", "store")),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (a *Arena) lockFor(identity string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[identity]
	if !ok {
		l = &sync.Mutex{}
		a.locks[identity] = l
	}
	return l
}

// Close closes the underlying medium.
func (a *Arena) Close() error {
	return a.medium.Close()
}

// Collection is a named set of records of type T.
type Collection[T Record] struct {
	name   string
	medium Medium
	lock   *sync.Mutex
	logger *zap.Logger
}

// Open returns the collection called name. Opening the same name twice
// yields collections that serialize their writes against each other.
func Open[T Record](a *Arena, name string) *Collection[T] {
	return &Collection[T]{
		name:   name,
		medium: a.medium,
		lock:   a.lockFor(a.medium.Identity(name)),
		logger: a.logger.With(zap.String("collection", name)),
	}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// read loads the collection. A missing document is an empty collection;
// any other failure is logged and also treated as empty.
func (c *Collection[T]) read(ctx context.Context) map[string]T {
	items := make(map[string]T)

	data, err := c.medium.Load(ctx, c.name)
	if err != nil {
		if !errors.Is(err, ErrNotExist) {
			c.logger.Warn("read collection failed, treating as empty", zap.Error(err))
		}
		return items
	}
	if len(data) == 0 {
		return items
	}

	var list []T
	if err := json.Unmarshal(data, &list); err != nil {
		c.logger.Warn("parse collection failed, treating as empty", zap.Error(err))
		return items
	}
	for _, rec := range list {
		items[rec.RecordID()] = rec
	}
	return items
}

func (c *Collection[T]) write(ctx context.Context, items map[string]T) error {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	list := make([]T, 0, len(ids))
	for _, id := range ids {
		list = append(list, items[id])
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", c.name, err)
	}
	if err := c.medium.Save(ctx, c.name, data); err != nil {
		c.logger.Error("write collection failed", zap.Error(err))
		return fmt.Errorf("write collection %s: %w", c.name, err)
	}
	return nil
}

// Get returns the record with the given id.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, bool, error) {
	rec, ok := c.read(ctx)[id]
	return rec, ok, nil
}

// Values returns every record in no particular order.
func (c *Collection[T]) Values(ctx context.Context) ([]T, error) {
	items := c.read(ctx)
	out := make([]T, 0, len(items))
	for _, rec := range items {
		out = append(out, rec)
	}
	return out, nil
}

// Len returns the number of records.
func (c *Collection[T]) Len(ctx context.Context) (int, error) {
	return len(c.read(ctx)), nil
}

// Set inserts or replaces the record stored under id.
func (c *Collection[T]) Set(ctx context.Context, id string, rec T) error {
	return c.Update(ctx, func(items map[string]T) (bool, error) {
		items[id] = rec
		return true, nil
	})
}

// Delete removes the record stored under id and reports whether it existed.
func (c *Collection[T]) Delete(ctx context.Context, id string) (bool, error) {
	var removed bool
	err := c.Update(ctx, func(items map[string]T) (bool, error) {
		if _, ok := items[id]; !ok {
			return false, nil
		}
		delete(items, id)
		removed = true
		return true, nil
	})
	return removed, err
}

// Clear empties the collection.
func (c *Collection[T]) Clear(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.write(ctx, map[string]T{})
}

// Update runs fn against a freshly read snapshot while holding the
// collection's write lock and persists the snapshot when fn reports a change.
func (c *Collection[T]) Update(ctx context.Context, fn func(items map[string]T) (bool, error)) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	items := c.read(ctx)
	changed, err := fn(items)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return c.write(ctx, items)
}

// MergeStats counts the outcome of Merge.
type MergeStats struct {
	Added     int
	Updated   int
	Conflicts int
}

// Merge inserts recs in one write. Records whose id already exists are
// replaced when overwrite is set and counted as conflicts otherwise.
// Records with an empty id are skipped.
func (c *Collection[T]) Merge(ctx context.Context, recs []T, overwrite bool) (MergeStats, error) {
	var stats MergeStats
	err := c.Update(ctx, func(items map[string]T) (bool, error) {
		changed := false
		for _, rec := range recs {
			id := rec.RecordID()
			if id == "" {
				continue
			}
			if _, exists := items[id]; exists {
				if !overwrite {
					stats.Conflicts++
					continue
				}
				stats.Updated++
			} else {
				stats.Added++
			}
			items[id] = rec
			changed = true
		}
		return changed, nil
	})
	if err != nil {
		return MergeStats{}, err
	}
	return stats, nil
}

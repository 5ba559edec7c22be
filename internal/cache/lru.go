package cache

import (
	"context"
	"sync"

	"github.com/emrgen/docvault/internal/model"
	lru "github.com/hashicorp/golang-lru/v2"
)

var _ LatestCache = (*LRU)(nil)

type lruEntry struct {
	version    *model.Version
	generation uint64
}

// LRU keeps latest versions in process memory.
// An invalidated document keeps an empty entry carrying its generation.
type LRU struct {
	mu      sync.Mutex
	entries *lru.Cache[string, lruEntry]
}

func NewLRU(size int) (*LRU, error) {
	entries, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, err
	}

	return &LRU{entries: entries}, nil
}

func (l *LRU) GetLatest(ctx context.Context, documentID string) (*model.Version, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries.Get(documentID)
	if !ok {
		return nil, 0, nil
	}
	if entry.version == nil {
		return nil, entry.generation, nil
	}

	version := *entry.version
	return &version, entry.generation, nil
}

func (l *LRU) SetLatest(ctx context.Context, documentID string, version *model.Version, generation uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, _ := l.entries.Peek(documentID)
	if entry.generation != generation {
		return nil
	}

	if version == nil {
		entry.version = nil
	} else {
		// store a copy so callers cannot mutate the cached entry
		copied := *version
		entry.version = &copied
	}
	l.entries.Add(documentID, entry)

	return nil
}

func (l *LRU) Invalidate(ctx context.Context, documentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, _ := l.entries.Peek(documentID)
	l.entries.Add(documentID, lruEntry{generation: entry.generation + 1})

	return nil
}

func (l *LRU) Len() int {
	return l.entries.Len()
}

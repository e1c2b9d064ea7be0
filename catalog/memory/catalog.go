package memory

import (
	"context"
	"sync"

	"github.com/mwantia/gridindex/catalog"
	"github.com/mwantia/gridindex/data"
	"github.com/tidwall/btree"
)

// MemoryCatalog keeps entries in an ordered in-memory map. Entries are
// lost on Close.
type MemoryCatalog struct {
	mu sync.RWMutex

	entries *btree.Map[string, *catalog.Entry]
}

var _ catalog.Catalog = (*MemoryCatalog)(nil)

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		entries: btree.NewMap[string, *catalog.Entry](0),
	}
}

// Returns the identifier name defined for this catalog
func (*MemoryCatalog) Name() string {
	return "memory"
}

func (mc *MemoryCatalog) Open(ctx context.Context) error {
	return nil
}

func (mc *MemoryCatalog) Close(ctx context.Context) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.entries.Clear()
	return nil
}

func (mc *MemoryCatalog) Record(ctx context.Context, entry *catalog.Entry) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	stored := *entry
	stored.Variables = catalog.SortVariables(entry.Variables)
	mc.entries.Set(entry.Key(), &stored)
	return nil
}

func (mc *MemoryCatalog) Lookup(ctx context.Context, kind data.UnitKind, name string) (*catalog.Entry, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	entry, ok := mc.entries.Get(catalog.Key(kind, name))
	if !ok {
		return nil, data.ErrEntryNotExist
	}
	clone := *entry
	return &clone, nil
}

func (mc *MemoryCatalog) Find(ctx context.Context, variable string) ([]*catalog.Entry, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var found []*catalog.Entry
	mc.entries.Scan(func(_ string, entry *catalog.Entry) bool {
		if entry.HasVariable(variable) {
			clone := *entry
			found = append(found, &clone)
		}
		return true
	})
	return found, nil
}

func (mc *MemoryCatalog) List(ctx context.Context) ([]*catalog.Entry, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	entries := make([]*catalog.Entry, 0, mc.entries.Len())
	mc.entries.Scan(func(_ string, entry *catalog.Entry) bool {
		clone := *entry
		entries = append(entries, &clone)
		return true
	})
	return entries, nil
}

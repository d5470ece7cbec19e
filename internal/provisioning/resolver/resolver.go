package resolver

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// ItemStore is the project item collaborator.
type ItemStore interface {
	GetAll(ctx context.Context, kind types.DeviceKind, projectID uuid.UUID) ([]types.ProjectItem, error)
	Create(ctx context.Context, kind types.DeviceKind, projectID uuid.UUID, item types.ProjectItem) (types.ProjectItem, error)
}

// Resolver maps device references of category records to wire addresses.
type Resolver struct {
	store     ItemStore
	projectID uuid.UUID
	cache     *AddressCache
	loaded    map[types.DeviceKind][]types.ProjectItem
	// stored holds the items of each kind read from the store, plus the
	// placeholders created during this run.
	stored map[types.DeviceKind][]types.ProjectItem
	logger *zap.Logger
}

// New creates a resolver for one run. preloaded are project items the
// caller already has in memory; they are consulted before the store.
// Without a store only cache, preloaded items and candidate addresses are
// used.
func New(store ItemStore, projectID uuid.UUID, cache *AddressCache, preloaded []types.ProjectItem, logger *zap.Logger) *Resolver {
	loaded := make(map[types.DeviceKind][]types.ProjectItem)
	for _, item := range preloaded {
		loaded[item.Kind] = append(loaded[item.Kind], item)
	}

	return &Resolver{
		store:     store,
		projectID: projectID,
		cache:     cache,
		loaded:    loaded,
		stored:    make(map[types.DeviceKind][]types.ProjectItem),
		logger:    logger,
	}
}

// Resolve returns the wire address of ref, creating a placeholder project
// item when none exists.
func (r *Resolver) Resolve(ctx context.Context, ref types.DeviceRef) (uint16, error) {
	// 1. run cache
	if e, ok := r.cache.Lookup(ref.Kind, ref.LogicalID, ref.Address); ok {
		return e.Address, nil
	}

	// 2. items already in memory
	if item, ok := findByID(r.loaded[ref.Kind], ref.LogicalID); ok {
		return r.remember(ref, item)
	}

	if r.store == nil {
		if ref.Address == "" {
			return 0, fmt.Errorf("device %s has no address and no item store is configured", ref.LogicalID)
		}
		return r.remember(ref, types.ProjectItem{Kind: ref.Kind, Address: ref.Address, Name: ref.LogicalID})
	}

	// 3. store items, by id first, then by candidate address
	items, err := r.storedItems(ctx, ref.Kind)
	if err != nil {
		return 0, err
	}
	if item, ok := findByID(items, ref.LogicalID); ok {
		return r.remember(ref, item)
	}
	if ref.Address != "" {
		for _, item := range items {
			if item.Address == ref.Address {
				return r.remember(ref, item)
			}
		}
	}

	// 4. create a placeholder
	address := ref.Address
	if address == "" {
		address = nextFreeAddress(items)
	}

	created, err := r.store.Create(ctx, ref.Kind, r.projectID, types.ProjectItem{
		ProjectID: r.projectID,
		Kind:      ref.Kind,
		Name:      fmt.Sprintf("%s %s", ref.Kind.Title(), address),
		Address:   address,
	})
	if err != nil {
		return 0, fmt.Errorf("create %s %s: %w", ref.Kind, address, err)
	}
	r.stored[ref.Kind] = append(r.stored[ref.Kind], created)

	r.logger.Info("Created placeholder project item",
		zap.String("kind", string(ref.Kind)),
		zap.String("name", created.Name),
		zap.String("address", created.Address))

	return r.remember(ref, created)
}

// storedItems reads the items of a kind from the store once per run.
func (r *Resolver) storedItems(ctx context.Context, kind types.DeviceKind) ([]types.ProjectItem, error) {
	if items, ok := r.stored[kind]; ok {
		return items, nil
	}
	items, err := r.store.GetAll(ctx, kind, r.projectID)
	if err != nil {
		return nil, fmt.Errorf("load %s items: %w", kind, err)
	}
	if items == nil {
		items = []types.ProjectItem{}
	}
	r.stored[kind] = items
	return items, nil
}

func findByID(items []types.ProjectItem, logicalID string) (types.ProjectItem, bool) {
	if logicalID == "" {
		return types.ProjectItem{}, false
	}
	for _, item := range items {
		if item.ID != uuid.Nil && item.ID.String() == logicalID {
			return item, true
		}
	}
	return types.ProjectItem{}, false
}

func (r *Resolver) remember(ref types.DeviceRef, item types.ProjectItem) (uint16, error) {
	addr, err := ParseAddress(item.Address)
	if err != nil {
		return 0, fmt.Errorf("item %s: %w", item.Name, err)
	}

	entry := CacheEntry{LogicalID: ref.LogicalID, Address: addr}
	r.cache.Store(ref.Kind, item.Address, entry)
	if ref.Address != "" && ref.Address != item.Address {
		r.cache.Store(ref.Kind, ref.Address, entry)
	}
	return addr, nil
}

func ParseAddress(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid device address %q", s)
	}
	return uint16(v), nil
}

// nextFreeAddress is one above the highest numeric address in use.
func nextFreeAddress(items []types.ProjectItem) string {
	highest := 0
	for _, item := range items {
		if v, err := strconv.Atoi(item.Address); err == nil && v > highest {
			highest = v
		}
	}
	return strconv.Itoa(highest + 1)
}

package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"location-dedupe/internal/merge"
	"location-dedupe/internal/models"
)

// Memory is an in-process datastore with the same transactional contract as
// Repository. Transactions work on a copy that replaces the live state only
// on commit, and run one at a time.
type Memory struct {
	mu        sync.Mutex
	locations map[string]models.Location
	tenants   map[string]models.Tenant
	writes    int
	failures  map[string]error
}

// NewMemory creates a store seeded with locations and tenants.
func NewMemory(locations []models.Location, tenants []models.Tenant) *Memory {
	m := &Memory{
		locations: make(map[string]models.Location, len(locations)),
		tenants:   make(map[string]models.Tenant, len(tenants)),
		failures:  map[string]error{},
	}
	for _, l := range locations {
		m.locations[l.ID] = l
	}
	for _, t := range tenants {
		m.tenants[t.ID] = t
	}
	return m
}

// FailOn makes every later call of the named Tx operation return err.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

// Writes counts mutating operations that have been committed.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// ListLocations returns every location with its tenant count, ordered by id.
func (m *Memory) ListLocations(_ context.Context) ([]models.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int)
	for _, t := range m.tenants {
		counts[t.LocationID]++
	}
	locations := make([]models.Location, 0, len(m.locations))
	for _, id := range slices.Sorted(maps.Keys(m.locations)) {
		l := m.locations[id]
		l.TenantCount = counts[id]
		locations = append(locations, l)
	}
	return locations, nil
}

// TenantsByLocation lists the tenants attached to one location, ordered by name.
func (m *Memory) TenantsByLocation(_ context.Context, locationID string) ([]models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tenants := []models.Tenant{}
	for _, t := range m.tenants {
		if t.LocationID == locationID {
			tenants = append(tenants, t)
		}
	}
	slices.SortFunc(tenants, func(a, b models.Tenant) int { return strings.Compare(a.Name, b.Name) })
	return tenants, nil
}

// InTx runs fn against a private copy of the store and publishes the copy
// only if fn succeeds.
func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx merge.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		locations: maps.Clone(m.locations),
		tenants:   maps.Clone(m.tenants),
		failures:  m.failures,
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.locations, m.tenants = tx.locations, tx.tenants
	m.writes += tx.writes
	return nil
}

type memTx struct {
	locations map[string]models.Location
	tenants   map[string]models.Tenant
	failures  map[string]error
	writes    int
}

func (t *memTx) fail(op string) error {
	if err, ok := t.failures[op]; ok {
		return fmt.Errorf("repository: %s: %w", op, err)
	}
	return nil
}

func (t *memTx) LocationForUpdate(_ context.Context, id string) (*models.Location, error) {
	if err := t.fail("LocationForUpdate"); err != nil {
		return nil, err
	}
	l, ok := t.locations[id]
	if !ok {
		return nil, fmt.Errorf("repository: location %s: %w", id, merge.ErrLocationNotFound)
	}
	return &l, nil
}

func (t *memTx) ConflictingTenants(_ context.Context, fromID, toID string) ([]models.Tenant, error) {
	if err := t.fail("ConflictingTenants"); err != nil {
		return nil, err
	}
	existing := make(map[string]bool)
	for _, tn := range t.tenants {
		if tn.LocationID == toID {
			existing[strings.ToLower(tn.Name)] = true
		}
	}
	var conflicts []models.Tenant
	for _, tn := range t.tenants {
		if tn.LocationID == fromID && existing[strings.ToLower(tn.Name)] {
			conflicts = append(conflicts, tn)
		}
	}
	slices.SortFunc(conflicts, func(a, b models.Tenant) int { return strings.Compare(a.Name, b.Name) })
	return conflicts, nil
}

func (t *memTx) DeleteTenants(_ context.Context, ids []string) (int64, error) {
	if err := t.fail("DeleteTenants"); err != nil {
		return 0, err
	}
	var deleted int64
	for _, id := range ids {
		if _, ok := t.tenants[id]; ok {
			delete(t.tenants, id)
			deleted++
		}
	}
	t.writes++
	return deleted, nil
}

func (t *memTx) ReassignTenants(ctx context.Context, fromID, toID string) (int64, error) {
	if err := t.fail("ReassignTenants"); err != nil {
		return 0, err
	}
	// same guarantee as the unique index on (location_id, lower(name))
	conflicts, err := t.ConflictingTenants(ctx, fromID, toID)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to reassign tenants: %w", err)
	}
	if len(conflicts) > 0 {
		return 0, fmt.Errorf("repository: failed to reassign tenants: %w: %s",
			merge.ErrTenantConflict, conflicts[0].Name)
	}
	var moved int64
	for id, tn := range t.tenants {
		if tn.LocationID == fromID {
			tn.LocationID = toID
			t.tenants[id] = tn
			moved++
		}
	}
	t.writes++
	return moved, nil
}

func (t *memTx) UpdateLocation(_ context.Context, id string, updates []merge.FieldUpdate) error {
	if err := t.fail("UpdateLocation"); err != nil {
		return err
	}
	l, ok := t.locations[id]
	if !ok {
		return fmt.Errorf("repository: location %s: %w", id, merge.ErrLocationNotFound)
	}
	if err := merge.Apply(&l, updates); err != nil {
		return fmt.Errorf("repository: failed to update location: %w", err)
	}
	t.locations[id] = l
	t.writes++
	return nil
}

func (t *memTx) DeleteLocation(_ context.Context, id string) error {
	if err := t.fail("DeleteLocation"); err != nil {
		return err
	}
	if _, ok := t.locations[id]; !ok {
		return fmt.Errorf("repository: location %s: %w", id, merge.ErrLocationNotFound)
	}
	for _, tn := range t.tenants {
		if tn.LocationID == id {
			return fmt.Errorf("repository: location %s still has tenants", id)
		}
	}
	delete(t.locations, id)
	t.writes++
	return nil
}

// Package merge consolidates a duplicate location into its survivor inside a
// single datastore transaction.
package merge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"location-dedupe/internal/match"
	"location-dedupe/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrLocationNotFound = errors.New("merge: location not found")
	ErrTenantConflict   = errors.New("merge: tenant name already exists at survivor")
	ErrSameLocation     = errors.New("merge: survivor and loser are the same record")
)

// Tx is the set of datastore operations a merge performs. Every call made
// through one Tx commits or rolls back together.
type Tx interface {
	LocationForUpdate(ctx context.Context, id string) (*models.Location, error)
	// ConflictingTenants returns fromID's tenants whose names (case-insensitive)
	// already exist at toID.
	ConflictingTenants(ctx context.Context, fromID, toID string) ([]models.Tenant, error)
	DeleteTenants(ctx context.Context, ids []string) (int64, error)
	ReassignTenants(ctx context.Context, fromID, toID string) (int64, error)
	UpdateLocation(ctx context.Context, id string, updates []FieldUpdate) error
	DeleteLocation(ctx context.Context, id string) error
}

// Store runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Result summarises one committed merge.
type Result struct {
	SurvivorID       string   `json:"survivor_id" yaml:"survivor_id"`
	LoserID          string   `json:"loser_id" yaml:"loser_id"`
	TenantsMoved     int64    `json:"tenants_moved" yaml:"tenants_moved"`
	FieldsBackfilled []string `json:"fields_backfilled" yaml:"fields_backfilled"`
	TenantsDropped   []string `json:"tenants_dropped,omitempty" yaml:"tenants_dropped,omitempty"`
}

// TenantPolicy decides what happens when a loser's tenant has the same name
// as one of the survivor's.
type TenantPolicy string

const (
	// RejectConflicts fails the merge and leaves both records untouched.
	RejectConflicts TenantPolicy = "reject"
	// DropConflicts deletes the loser's duplicate tenants and moves the rest.
	DropConflicts TenantPolicy = "drop"
)

// ParseTenantPolicy accepts "reject" (or empty) and "drop".
func ParseTenantPolicy(s string) (TenantPolicy, error) {
	switch p := TenantPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", RejectConflicts:
		return RejectConflicts, nil
	case DropConflicts:
		return p, nil
	default:
		return "", fmt.Errorf("merge: unknown tenant conflict policy %q (want reject or drop)", s)
	}
}

// Plan is one survivor/loser pair scheduled for merging.
type Plan struct {
	GroupID   string
	Category  match.Category
	Reason    string
	Survivor  models.Location
	Loser     models.Location
	Rationale string
}

// LogLine renders the plan in the execution log format.
func (p *Plan) LogLine() string {
	return fmt.Sprintf("[%s] MERGE: %s -> %s [%s]", p.Reason, p.Loser.Label(), p.Survivor.Label(), p.Rationale)
}

// Outcome pairs a plan with what happened to it.
type Outcome struct {
	Plan   Plan
	Result *Result
	Err    error
}

// Executor performs merges against a Store.
type Executor struct {
	store   Store
	fields  []string
	workers int
	policy  TenantPolicy
	locks   *keyedMutex
}

// Option configures an Executor.
type Option func(*Executor)

// WithFields replaces the backfill whitelist.
func WithFields(fields []string) Option {
	return func(e *Executor) {
		e.fields = fields
	}
}

// WithWorkers sets how many independent groups merge concurrently.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		e.workers = max(n, 1)
	}
}

// WithTenantPolicy sets how tenant name collisions are handled.
func WithTenantPolicy(p TenantPolicy) Option {
	return func(e *Executor) {
		e.policy = p
	}
}

// NewExecutor creates an executor. It fails on unknown backfill fields.
func NewExecutor(store Store, opts ...Option) (*Executor, error) {
	e := &Executor{
		store:   store,
		fields:  DefaultBackfillFields,
		workers: 1,
		policy:  RejectConflicts,
		locks:   &keyedMutex{held: map[string]*lockEntry{}},
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := ValidateFields(e.fields); err != nil {
		return nil, err
	}
	if _, err := ParseTenantPolicy(string(e.policy)); err != nil {
		return nil, err
	}
	return e, nil
}

// Merge moves the loser's tenants to the survivor, fills the survivor's empty
// enrichable fields from the loser and deletes the loser, atomically. Once the
// transaction has started it is not cancelled by ctx.
func (e *Executor) Merge(ctx context.Context, survivorID, loserID string) (*Result, error) {
	if survivorID == loserID {
		return nil, ErrSameLocation
	}
	ctx = context.WithoutCancel(ctx)

	unlock := e.locks.lock(survivorID, loserID)
	defer unlock()

	res := &Result{SurvivorID: survivorID, LoserID: loserID}
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		// row locks are taken in id order so two transactions cannot deadlock
		locked := make(map[string]*models.Location, 2)
		for _, id := range slices.Sorted(slices.Values([]string{survivorID, loserID})) {
			loc, err := tx.LocationForUpdate(ctx, id)
			if err != nil {
				return fmt.Errorf("lock %s: %w", id, err)
			}
			locked[id] = loc
		}
		survivor, loser := locked[survivorID], locked[loserID]

		conflicts, err := tx.ConflictingTenants(ctx, loserID, survivorID)
		if err != nil {
			return fmt.Errorf("check tenant names: %w", err)
		}
		if len(conflicts) > 0 {
			if e.policy != DropConflicts {
				return fmt.Errorf("%w: %s", ErrTenantConflict, tenantNames(conflicts))
			}
			ids := make([]string, len(conflicts))
			for i := range conflicts {
				ids[i] = conflicts[i].ID
			}
			if _, err := tx.DeleteTenants(ctx, ids); err != nil {
				return fmt.Errorf("drop duplicate tenants: %w", err)
			}
			res.TenantsDropped = ids
		}

		moved, err := tx.ReassignTenants(ctx, loserID, survivorID)
		if err != nil {
			return fmt.Errorf("reassign tenants: %w", err)
		}

		updates := Backfill(survivor, loser, e.fields)
		if len(updates) > 0 {
			if err := tx.UpdateLocation(ctx, survivorID, updates); err != nil {
				return fmt.Errorf("backfill survivor: %w", err)
			}
		}

		if err := tx.DeleteLocation(ctx, loserID); err != nil {
			return fmt.Errorf("delete loser: %w", err)
		}

		res.TenantsMoved = moved
		res.FieldsBackfilled = fieldNames(updates)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge %s -> %s: %w", loserID, survivorID, err)
	}
	return res, nil
}

// Run executes plans and reports every outcome. Plans sharing a survivor run
// in order on one worker; independent survivors run concurrently. A failed
// pair is logged and never retried, and does not stop the batch.
func (e *Executor) Run(ctx context.Context, plans []Plan) []Outcome {
	outcomes := make([]Outcome, len(plans))

	var order []string
	bySurvivor := make(map[string][]int)
	for i := range plans {
		id := plans[i].Survivor.ID
		if _, ok := bySurvivor[id]; !ok {
			order = append(order, id)
		}
		bySurvivor[id] = append(bySurvivor[id], i)
	}

	var g errgroup.Group
	g.SetLimit(e.workers)
	for _, id := range order {
		idx := bySurvivor[id]
		g.Go(func() error {
			for _, i := range idx {
				outcomes[i] = e.execute(ctx, plans[i])
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	return outcomes
}

func (e *Executor) execute(ctx context.Context, p Plan) Outcome {
	if err := ctx.Err(); err != nil {
		return Outcome{Plan: p, Err: fmt.Errorf("merge: skipped: %w", err)}
	}

	log.Info().Str("group_id", p.GroupID).Msg(p.LogLine())

	res, err := e.Merge(ctx, p.Survivor.ID, p.Loser.ID)
	if err != nil {
		log.Error().Err(err).
			Str("group_id", p.GroupID).
			Str("survivor_id", p.Survivor.ID).
			Str("loser_id", p.Loser.ID).
			Msg("merge failed, continuing with next pair")
		return Outcome{Plan: p, Err: err}
	}

	log.Info().
		Str("group_id", p.GroupID).
		Str("survivor_id", res.SurvivorID).
		Str("loser_id", res.LoserID).
		Int64("tenants_moved", res.TenantsMoved).
		Strs("fields_backfilled", res.FieldsBackfilled).
		Strs("tenants_dropped", res.TenantsDropped).
		Msg("merged")
	return Outcome{Plan: p, Result: res}
}

func tenantNames(tenants []models.Tenant) string {
	names := make([]string, len(tenants))
	for i := range tenants {
		names[i] = tenants[i].Name
	}
	return strings.Join(names, ", ")
}

// keyedMutex serialises work touching the same record ids. An entry lives
// only while someone holds or waits for it.
type keyedMutex struct {
	mu   sync.Mutex
	held map[string]*lockEntry
}

type lockEntry struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(ids ...string) (unlock func()) {
	keys := slices.Compact(slices.Sorted(slices.Values(ids)))

	k.mu.Lock()
	entries := make([]*lockEntry, len(keys))
	for i, id := range keys {
		e, ok := k.held[id]
		if !ok {
			e = &lockEntry{}
			k.held[id] = e
		}
		e.refs++
		entries[i] = e
	}
	k.mu.Unlock()

	for _, e := range entries {
		e.Lock()
	}
	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].Unlock()
		}
		k.mu.Lock()
		for i, id := range keys {
			if entries[i].refs--; entries[i].refs == 0 {
				delete(k.held, id)
			}
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.held)
}

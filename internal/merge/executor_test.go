package merge_test

import (
	"context"
	"sync"
	"testing"

	"location-dedupe/internal/match"
	"location-dedupe/internal/merge"
	"location-dedupe/internal/models"
	"location-dedupe/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed() ([]models.Location, []models.Tenant) {
	locations := []models.Location{
		{ID: "A", Name: "Kingfisher Shopping Centre", Website: "https://kingfisher-centre.co.uk", IsManaged: true},
		{ID: "B", Name: "Kingfisher Centre", Phone: "01527 61566", Website: "https://other.example", Footfall: 90000},
		{ID: "C", Name: "The Kingfisher", Email: "info@kingfisher.co.uk"},
	}
	tenants := []models.Tenant{
		{ID: "t1", LocationID: "A", Name: "Boots"},
		{ID: "t2", LocationID: "B", Name: "Greggs"},
		{ID: "t3", LocationID: "B", Name: "Costa"},
		{ID: "t4", LocationID: "C", Name: "WHSmith"},
	}
	return locations, tenants
}

func tenantTotal(t *testing.T, store *repository.Memory) int {
	t.Helper()
	locs, err := store.ListLocations(context.Background())
	require.NoError(t, err)
	total := 0
	for _, l := range locs {
		total += l.TenantCount
	}
	return total
}

func find(t *testing.T, store *repository.Memory, id string) (models.Location, bool) {
	t.Helper()
	locs, err := store.ListLocations(context.Background())
	require.NoError(t, err)
	for _, l := range locs {
		if l.ID == id {
			return l, true
		}
	}
	return models.Location{}, false
}

func TestExecutor_Merge(t *testing.T) {
	store := repository.NewMemory(seed())
	exec, err := merge.NewExecutor(store)
	require.NoError(t, err)
	before := tenantTotal(t, store)

	res, err := exec.Merge(context.Background(), "A", "B")
	require.NoError(t, err)

	assert.Equal(t, &merge.Result{
		SurvivorID:       "A",
		LoserID:          "B",
		TenantsMoved:     2,
		FieldsBackfilled: []string{"phone", "footfall"},
	}, res)

	survivor, ok := find(t, store, "A")
	require.True(t, ok)
	assert.Equal(t, 3, survivor.TenantCount)
	assert.Equal(t, "01527 61566", survivor.Phone)
	assert.Equal(t, 90000, survivor.Footfall)
	assert.Equal(t, "https://kingfisher-centre.co.uk", survivor.Website)
	assert.Equal(t, "Kingfisher Shopping Centre", survivor.Name)

	_, ok = find(t, store, "B")
	assert.False(t, ok)
	assert.Equal(t, before, tenantTotal(t, store))

	tenants, err := store.TenantsByLocation(context.Background(), "B")
	require.NoError(t, err)
	assert.Empty(t, tenants)
}

func TestExecutor_Merge_TenantConflictRollsBack(t *testing.T) {
	locations, tenants := seed()
	tenants = append(tenants, models.Tenant{ID: "t5", LocationID: "A", Name: "COSTA"})
	store := repository.NewMemory(locations, tenants)
	exec, err := merge.NewExecutor(store)
	require.NoError(t, err)

	res, err := exec.Merge(context.Background(), "A", "B")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, merge.ErrTenantConflict)
	assert.Contains(t, err.Error(), "Costa")

	_, ok := find(t, store, "B")
	assert.True(t, ok)
	assert.Zero(t, store.Writes())
}

func TestExecutor_Merge_DropConflictingTenants(t *testing.T) {
	locations, tenants := seed()
	tenants = append(tenants, models.Tenant{ID: "t5", LocationID: "A", Name: "COSTA"})
	store := repository.NewMemory(locations, tenants)
	exec, err := merge.NewExecutor(store, merge.WithTenantPolicy(merge.DropConflicts))
	require.NoError(t, err)

	res, err := exec.Merge(context.Background(), "A", "B")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.TenantsMoved)
	assert.Equal(t, []string{"t3"}, res.TenantsDropped)

	moved, err := store.TenantsByLocation(context.Background(), "A")
	require.NoError(t, err)
	var names []string
	for _, tn := range moved {
		names = append(names, tn.Name)
	}
	assert.Equal(t, []string{"Boots", "COSTA", "Greggs"}, names)
	_, ok := find(t, store, "B")
	assert.False(t, ok)
}

func TestExecutor_Merge_ConflictCheckFailureRollsBack(t *testing.T) {
	store := repository.NewMemory(seed())
	store.FailOn("ConflictingTenants", assert.AnError)
	exec, err := merge.NewExecutor(store, merge.WithTenantPolicy(merge.DropConflicts))
	require.NoError(t, err)

	_, err = exec.Merge(context.Background(), "A", "B")
	require.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, store.Writes())
}

func TestParseTenantPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    merge.TenantPolicy
		wantErr bool
	}{
		{in: "", want: merge.RejectConflicts},
		{in: "reject", want: merge.RejectConflicts},
		{in: " DROP ", want: merge.DropConflicts},
		{in: "merge", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := merge.ParseTenantPolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := merge.NewExecutor(repository.NewMemory(nil, nil), merge.WithTenantPolicy("merge"))
	assert.Error(t, err)
}

func TestExecutor_Merge_FailureAfterReassignRollsBack(t *testing.T) {
	store := repository.NewMemory(seed())
	store.FailOn("DeleteLocation", assert.AnError)
	exec, err := merge.NewExecutor(store)
	require.NoError(t, err)

	_, err = exec.Merge(context.Background(), "A", "B")
	require.ErrorIs(t, err, assert.AnError)

	tenants, err := store.TenantsByLocation(context.Background(), "B")
	require.NoError(t, err)
	assert.Len(t, tenants, 2)
	survivor, _ := find(t, store, "A")
	assert.Empty(t, survivor.Phone)
	assert.Zero(t, store.Writes())
}

func TestExecutor_Merge_Errors(t *testing.T) {
	store := repository.NewMemory(seed())
	exec, err := merge.NewExecutor(store)
	require.NoError(t, err)

	_, err = exec.Merge(context.Background(), "A", "missing")
	assert.ErrorIs(t, err, merge.ErrLocationNotFound)

	_, err = exec.Merge(context.Background(), "A", "A")
	assert.ErrorIs(t, err, merge.ErrSameLocation)

	assert.Zero(t, store.Writes())
}

func TestExecutor_Merge_IgnoresCallerCancellation(t *testing.T) {
	store := repository.NewMemory(seed())
	exec, err := merge.NewExecutor(store)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = exec.Merge(ctx, "A", "B")
	require.NoError(t, err)
	_, ok := find(t, store, "B")
	assert.False(t, ok)
}

func TestNewExecutor_RejectsUnknownFields(t *testing.T) {
	_, err := merge.NewExecutor(repository.NewMemory(nil, nil), merge.WithFields([]string{"name"}))
	assert.Error(t, err)
}

func plan(survivor, loser models.Location) merge.Plan {
	return merge.Plan{
		GroupID:   "GRP-1",
		Category:  match.HighConfidence,
		Reason:    "exact web domain (kingfisher-centre.co.uk)",
		Survivor:  survivor,
		Loser:     loser,
		Rationale: "score 60 vs 5",
	}
}

func TestPlan_LogLine(t *testing.T) {
	p := plan(models.Location{ID: "A", Name: "Kingfisher Shopping Centre"}, models.Location{ID: "B", Name: "Kingfisher Centre"})
	assert.Equal(t,
		"[exact web domain (kingfisher-centre.co.uk)] MERGE: Kingfisher Centre (B) -> Kingfisher Shopping Centre (A) [score 60 vs 5]",
		p.LogLine())
}

func TestExecutor_Run(t *testing.T) {
	locations, tenants := seed()
	locations = append(locations,
		models.Location{ID: "D", Name: "Broadmarsh"},
		models.Location{ID: "E", Name: "Broadmarsh Centre", Phone: "0115 950 5000"},
	)
	store := repository.NewMemory(locations, tenants)
	exec, err := merge.NewExecutor(store, merge.WithWorkers(4))
	require.NoError(t, err)

	byID := map[string]models.Location{}
	for _, l := range locations {
		byID[l.ID] = l
	}
	plans := []merge.Plan{
		plan(byID["A"], byID["B"]),
		plan(byID["D"], byID["E"]),
		plan(byID["A"], models.Location{ID: "Z", Name: "Ghost"}),
		plan(byID["A"], byID["C"]),
	}

	outcomes := exec.Run(context.Background(), plans)
	require.Len(t, outcomes, 4)

	for i, o := range outcomes {
		assert.Equal(t, plans[i].Loser.ID, o.Plan.Loser.ID)
	}
	require.NoError(t, outcomes[0].Err)
	require.NoError(t, outcomes[1].Err)
	assert.ErrorIs(t, outcomes[2].Err, merge.ErrLocationNotFound)
	assert.Nil(t, outcomes[2].Result)
	require.NoError(t, outcomes[3].Err)

	locs, err := store.ListLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "A", locs[0].ID)
	assert.Equal(t, 4, locs[0].TenantCount)
	assert.Equal(t, "info@kingfisher.co.uk", locs[0].Email)
	assert.Equal(t, "D", locs[1].ID)
	assert.Equal(t, "0115 950 5000", locs[1].Phone)
}

func TestExecutor_Run_CancelledBeforeStart(t *testing.T) {
	locations, tenants := seed()
	store := repository.NewMemory(locations, tenants)
	exec, err := merge.NewExecutor(store)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := exec.Run(ctx, []merge.Plan{plan(locations[0], locations[1])})
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, context.Canceled)
	assert.Zero(t, store.Writes())
}

func TestExecutor_ConcurrentMergesSameSurvivor(t *testing.T) {
	var locations []models.Location
	var tenants []models.Tenant
	locations = append(locations, models.Location{ID: "S", Name: "Survivor"})
	for _, id := range []string{"L1", "L2", "L3", "L4", "L5", "L6"} {
		locations = append(locations, models.Location{ID: id, Name: "Loser " + id})
		tenants = append(tenants, models.Tenant{ID: "t-" + id, LocationID: id, Name: "Shop " + id})
	}
	store := repository.NewMemory(locations, tenants)
	exec, err := merge.NewExecutor(store, merge.WithWorkers(6))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, l := range locations[1:] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := exec.Merge(context.Background(), "S", l.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	survivor, ok := find(t, store, "S")
	require.True(t, ok)
	assert.Equal(t, 6, survivor.TenantCount)
	assert.Equal(t, 6, tenantTotal(t, store))
}

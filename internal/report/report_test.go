package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"location-dedupe/internal/match"
	"location-dedupe/internal/merge"
	"location-dedupe/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func at(l models.Location, lat, lon float64) models.Location {
	l.SetCoordinates(lat, lon)
	return l
}

func scenarioGroups(t *testing.T) []match.DuplicateGroup {
	t.Helper()
	records := []models.Location{
		{ID: "q1", Name: "Queensgate Shopping Centre", IsManaged: true, Postcode: "PE1 1NT",
			Website: "https://www.queensgate-shopping.co.uk", City: "Peterborough"},
		{ID: "q2", Name: "Queensgate", Postcode: "PE1 1NT", City: "Peterborough"},
		at(models.Location{ID: "f1", Name: "Fengate Retail Park", City: "Peterborough"}, 52.5710, -0.2200),
		at(models.Location{ID: "f2", Name: "Fengate Retail Park", City: "Peterborough"}, 0, 0),
		at(models.Location{ID: "k1", Name: "Kingfisher Centre", City: "Redditch"}, 52.3069, -1.9415),
		at(models.Location{ID: "k2", Name: "Kingfisher Centre", City: "Harlow"}, 51.7700, 0.0960),
	}
	groups, err := match.NewEngine(match.DefaultRules()).Detect(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	return groups
}

func TestBuild(t *testing.T) {
	r, err := Build("run-1", DryRun, 6, scenarioGroups(t))
	require.NoError(t, err)

	assert.Equal(t, Summary{SafeToMerge: 1, IntegrityIssues: 1, Collisions: 1}, r.Summary)
	assert.Equal(t, 1, r.Passes)

	safe := r.SafeToMerge[0]
	assert.Equal(t, match.HighConfidence, safe.Category)
	assert.Equal(t, "q1", safe.SurvivorID)
	assert.Equal(t, []string{"q2"}, safe.LoserIDs)
	assert.Equal(t, "score 67 vs 7", safe.Rationales["q2"])

	plans := safe.Plans()
	require.Len(t, plans, 1)
	assert.Equal(t, "q1", plans[0].Survivor.ID)
	assert.Equal(t, "q2", plans[0].Loser.ID)
	assert.Equal(t, "[postal code + name similarity 100%] MERGE: Queensgate (q2) -> Queensgate Shopping Centre (q1) [score 67 vs 7]",
		plans[0].LogLine())

	issue := r.IntegrityIssues[0]
	assert.Equal(t, match.CoordinateError, issue.Category)
	require.Len(t, issue.Members, 2)
	assert.Equal(t, 0.0, *issue.Members[1].Latitude)

	assert.Equal(t, match.NameCollision, r.Collisions[0].Category)
	assert.Greater(t, r.Collisions[0].DistanceMeters, 50000.0)
}

func TestReport_AddPassAndOutcomes(t *testing.T) {
	r, err := Build("run-2", Execute, 6, scenarioGroups(t))
	require.NoError(t, err)

	plans := r.SafeToMerge[0].Plans()
	r.AddOutcomes([]merge.Outcome{
		{Plan: plans[0], Result: &merge.Result{SurvivorID: "q1", LoserID: "q2", TenantsMoved: 4, TenantsDropped: []string{"t7"}}},
		{Plan: plans[0], Err: errors.New("merge: tenant name already exists at survivor")},
	})
	assert.Equal(t, 1, r.Summary.Merged)
	assert.Equal(t, 1, r.Summary.Failed)

	fresh, err := r.AddPass(nil)
	require.NoError(t, err)
	assert.Empty(t, fresh)
	assert.Equal(t, 2, r.Passes)
	assert.Len(t, r.SafeToMerge, 1)
	assert.Empty(t, r.IntegrityIssues)
	assert.Empty(t, r.Collisions)
	assert.Equal(t, 1, r.Summary.Merged)

	var md bytes.Buffer
	require.NoError(t, Write(&md, r, Markdown))
	assert.Contains(t, md.String(), "## Execution")
	assert.Contains(t, md.String(), "Merged: 1, failed: 1")
	assert.Contains(t, md.String(), "FAILED: merge: tenant name already exists at survivor")
	assert.Contains(t, md.String(), "ok, dropped duplicate tenants t7")
	assert.Equal(t, []string{"t7"}, r.Executions[0].TenantsDropped)
}

func TestReport_Filter(t *testing.T) {
	r, err := Build("run-3", DryRun, 6, scenarioGroups(t))
	require.NoError(t, err)

	only := r.Filter(match.NameCollision)
	assert.Empty(t, only.SafeToMerge)
	assert.Empty(t, only.IntegrityIssues)
	assert.Len(t, only.Collisions, 1)
	assert.Equal(t, Summary{Collisions: 1}, only.Summary)

	assert.Same(t, r, r.Filter(""))
	assert.Len(t, r.SafeToMerge, 1)
}

func TestWrite(t *testing.T) {
	r, err := Build("run-4", DryRun, 6, scenarioGroups(t))
	require.NoError(t, err)

	t.Run("markdown", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, r, Markdown))
		out := buf.String()
		assert.Contains(t, out, "## Safe to Merge")
		assert.Contains(t, out, "**Queensgate Shopping Centre** (`q1`, Peterborough)")
		assert.Contains(t, out, "## Data Integrity Issues")
		assert.Contains(t, out, "[0.000000, 0.000000] - ID: `f2`")
		assert.Contains(t, out, "## Name Collisions")
		assert.Contains(t, out, "Kingfisher Centre (Redditch) vs Kingfisher Centre (Harlow)")
		assert.NotContains(t, out, "## Execution")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, r, JSON))
		var decoded struct {
			RunID   string  `json:"run_id"`
			Summary Summary `json:"summary"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "run-4", decoded.RunID)
		assert.Equal(t, r.Summary, decoded.Summary)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, r, YAML))
		var decoded map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "run-4", decoded["run_id"])
		assert.Equal(t, "dry-run", decoded["mode"])
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Error(t, Write(&bytes.Buffer{}, r, Format("pdf")))
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: Markdown},
		{in: "MD", want: Markdown},
		{in: "markdown", want: Markdown},
		{in: "json", want: JSON},
		{in: "yml", want: YAML},
		{in: "csv", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

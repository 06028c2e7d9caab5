// Package report partitions duplicate groups into the reviewable document
// that gates every merge.
package report

import (
	"fmt"
	"time"

	"location-dedupe/internal/match"
	"location-dedupe/internal/merge"
	"location-dedupe/internal/models"
	"location-dedupe/internal/survivor"
)

// Mode is how a run treats the datastore.
type Mode string

const (
	DryRun  Mode = "dry-run"
	Execute Mode = "execute"
)

// Member is one record as shown to a reviewer, raw coordinates included.
type Member struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Postcode    string   `json:"postcode,omitempty" yaml:"postcode,omitempty"`
	City        string   `json:"city,omitempty" yaml:"city,omitempty"`
	Latitude    *float64 `json:"latitude" yaml:"latitude"`
	Longitude   *float64 `json:"longitude" yaml:"longitude"`
	Website     string   `json:"website,omitempty" yaml:"website,omitempty"`
	TenantCount int      `json:"tenant_count" yaml:"tenant_count"`
}

func newMember(l *models.Location) Member {
	return Member{
		ID:          l.ID,
		Name:        l.Name,
		Postcode:    l.Postcode,
		City:        l.City,
		Latitude:    l.Latitude,
		Longitude:   l.Longitude,
		Website:     l.Website,
		TenantCount: l.TenantCount,
	}
}

// SafeGroup is a merge-eligible group with its chosen survivor.
type SafeGroup struct {
	Pass       int               `json:"pass" yaml:"pass"`
	GroupID    string            `json:"group_id" yaml:"group_id"`
	Category   match.Category    `json:"category" yaml:"category"`
	Reason     string            `json:"reason" yaml:"reason"`
	SurvivorID string            `json:"survivor_id" yaml:"survivor_id"`
	LoserIDs   []string          `json:"loser_ids" yaml:"loser_ids"`
	Scores     map[string]int    `json:"scores" yaml:"scores"`
	Rationales map[string]string `json:"rationales" yaml:"rationales"`
	Survivor   Member            `json:"survivor" yaml:"survivor"`
	Losers     []Member          `json:"losers" yaml:"losers"`

	selection survivor.Selection
}

// Plans expands the group into one merge plan per loser.
func (g *SafeGroup) Plans() []merge.Plan {
	plans := make([]merge.Plan, 0, len(g.selection.Losers))
	for _, loser := range g.selection.Losers {
		plans = append(plans, merge.Plan{
			GroupID:   g.GroupID,
			Category:  g.Category,
			Reason:    g.Reason,
			Survivor:  g.selection.Survivor,
			Loser:     loser,
			Rationale: g.selection.RationaleFor(loser.ID),
		})
	}
	return plans
}

// ReviewGroup is a report-only group: a coordinate problem or a collision.
type ReviewGroup struct {
	Pass           int            `json:"pass" yaml:"pass"`
	GroupID        string         `json:"group_id" yaml:"group_id"`
	Category       match.Category `json:"category" yaml:"category"`
	Reason         string         `json:"reason" yaml:"reason"`
	DistanceMeters float64        `json:"distance_meters" yaml:"distance_meters"`
	Members        []Member       `json:"members" yaml:"members"`
}

// Execution is the outcome of one attempted merge.
type Execution struct {
	Pass             int      `json:"pass" yaml:"pass"`
	GroupID          string   `json:"group_id" yaml:"group_id"`
	SurvivorID       string   `json:"survivor_id" yaml:"survivor_id"`
	LoserID          string   `json:"loser_id" yaml:"loser_id"`
	LogLine          string   `json:"log_line" yaml:"log_line"`
	Merged           bool     `json:"merged" yaml:"merged"`
	TenantsMoved     int64    `json:"tenants_moved" yaml:"tenants_moved"`
	FieldsBackfilled []string `json:"fields_backfilled,omitempty" yaml:"fields_backfilled,omitempty"`
	TenantsDropped   []string `json:"tenants_dropped,omitempty" yaml:"tenants_dropped,omitempty"`
	Error            string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Summary counts the report sections.
type Summary struct {
	SafeToMerge     int `json:"safe_to_merge" yaml:"safe_to_merge"`
	IntegrityIssues int `json:"integrity_issues" yaml:"integrity_issues"`
	Collisions      int `json:"collisions" yaml:"collisions"`
	Merged          int `json:"merged" yaml:"merged"`
	Failed          int `json:"failed" yaml:"failed"`
}

// Report is the reviewable outcome of a run.
type Report struct {
	RunID           string        `json:"run_id" yaml:"run_id"`
	Mode            Mode          `json:"mode" yaml:"mode"`
	GeneratedAt     time.Time     `json:"generated_at" yaml:"generated_at"`
	TotalRecords    int           `json:"total_records" yaml:"total_records"`
	Passes          int           `json:"passes" yaml:"passes"`
	Summary         Summary       `json:"summary" yaml:"summary"`
	SafeToMerge     []SafeGroup   `json:"safe_to_merge" yaml:"safe_to_merge"`
	IntegrityIssues []ReviewGroup `json:"integrity_issues" yaml:"integrity_issues"`
	Collisions      []ReviewGroup `json:"collisions" yaml:"collisions"`
	Executions      []Execution   `json:"executions,omitempty" yaml:"executions,omitempty"`
}

// Build creates a report from the first detection pass of a run.
func Build(runID string, mode Mode, totalRecords int, groups []match.DuplicateGroup) (*Report, error) {
	r := &Report{
		RunID:           runID,
		Mode:            mode,
		GeneratedAt:     time.Now().UTC(),
		TotalRecords:    totalRecords,
		SafeToMerge:     []SafeGroup{},
		IntegrityIssues: []ReviewGroup{},
		Collisions:      []ReviewGroup{},
	}
	if _, err := r.AddPass(groups); err != nil {
		return nil, err
	}
	return r, nil
}

// AddPass records another detection pass and returns the merge-eligible
// groups it found. Report-only sections always reflect the latest pass,
// since they describe the data as it now stands.
func (r *Report) AddPass(groups []match.DuplicateGroup) ([]SafeGroup, error) {
	r.Passes++
	r.IntegrityIssues = r.IntegrityIssues[:0]
	r.Collisions = r.Collisions[:0]

	var fresh []SafeGroup
	for _, g := range groups {
		switch {
		case g.Category.Mergeable():
			sg, err := r.safeGroup(g)
			if err != nil {
				return nil, err
			}
			r.SafeToMerge = append(r.SafeToMerge, sg)
			fresh = append(fresh, sg)
		case g.Category == match.CoordinateError:
			r.IntegrityIssues = append(r.IntegrityIssues, r.reviewGroup(g))
		default:
			r.Collisions = append(r.Collisions, r.reviewGroup(g))
		}
	}
	r.summarise()
	return fresh, nil
}

func (r *Report) safeGroup(g match.DuplicateGroup) (SafeGroup, error) {
	sel, err := survivor.Select(g.Members)
	if err != nil {
		return SafeGroup{}, fmt.Errorf("report: group %s: %w", g.ID, err)
	}
	sg := SafeGroup{
		Pass:       r.Passes,
		GroupID:    g.ID,
		Category:   g.Category,
		Reason:     g.Reason,
		SurvivorID: sel.Survivor.ID,
		LoserIDs:   sel.LoserIDs(),
		Scores:     sel.Scores,
		Rationales: make(map[string]string, len(sel.Losers)),
		Survivor:   newMember(&sel.Survivor),
		selection:  sel,
	}
	for i := range sel.Losers {
		l := &sel.Losers[i]
		sg.Losers = append(sg.Losers, newMember(l))
		sg.Rationales[l.ID] = sel.RationaleFor(l.ID)
	}
	return sg, nil
}

func (r *Report) reviewGroup(g match.DuplicateGroup) ReviewGroup {
	rg := ReviewGroup{
		Pass:           r.Passes,
		GroupID:        g.ID,
		Category:       g.Category,
		Reason:         g.Reason,
		DistanceMeters: g.DistanceMeters,
	}
	for i := range g.Members {
		rg.Members = append(rg.Members, newMember(&g.Members[i]))
	}
	return rg
}

// AddOutcomes records the merges attempted for the current pass.
func (r *Report) AddOutcomes(outcomes []merge.Outcome) {
	for _, o := range outcomes {
		e := Execution{
			Pass:       r.Passes,
			GroupID:    o.Plan.GroupID,
			SurvivorID: o.Plan.Survivor.ID,
			LoserID:    o.Plan.Loser.ID,
			LogLine:    o.Plan.LogLine(),
		}
		if o.Err != nil {
			e.Error = o.Err.Error()
		} else if o.Result != nil {
			e.Merged = true
			e.TenantsMoved = o.Result.TenantsMoved
			e.FieldsBackfilled = o.Result.FieldsBackfilled
			e.TenantsDropped = o.Result.TenantsDropped
		}
		r.Executions = append(r.Executions, e)
	}
	r.summarise()
}

func (r *Report) summarise() {
	s := Summary{
		SafeToMerge:     len(r.SafeToMerge),
		IntegrityIssues: len(r.IntegrityIssues),
		Collisions:      len(r.Collisions),
	}
	for _, e := range r.Executions {
		if e.Merged {
			s.Merged++
		} else {
			s.Failed++
		}
	}
	r.Summary = s
}

// Filter returns a copy holding only the groups of one category. An empty
// category returns the report unchanged.
func (r *Report) Filter(category match.Category) *Report {
	if category == "" {
		return r
	}
	out := *r
	out.SafeToMerge = []SafeGroup{}
	out.IntegrityIssues = []ReviewGroup{}
	out.Collisions = []ReviewGroup{}
	for _, g := range r.SafeToMerge {
		if g.Category == category {
			out.SafeToMerge = append(out.SafeToMerge, g)
		}
	}
	for _, g := range r.IntegrityIssues {
		if g.Category == category {
			out.IntegrityIssues = append(out.IntegrityIssues, g)
		}
	}
	for _, g := range r.Collisions {
		if g.Category == category {
			out.Collisions = append(out.Collisions, g)
		}
	}
	out.Executions = nil
	out.summarise()
	return &out
}

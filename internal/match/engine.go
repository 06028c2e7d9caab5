// Package match decides which location records describe the same physical
// place and how confident that belief is.
package match

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"location-dedupe/internal/geo"
	"location-dedupe/internal/models"
	"location-dedupe/internal/normalize"
	"location-dedupe/internal/similarity"

	"golang.org/x/sync/errgroup"
)

// PairMatch is the classification of one candidate pair.
type PairMatch struct {
	A              string   `json:"a" yaml:"a"`
	B              string   `json:"b" yaml:"b"`
	Category       Category `json:"category" yaml:"category"`
	Reason         string   `json:"reason" yaml:"reason"`
	Similarity     float64  `json:"similarity" yaml:"similarity"`
	DistanceMeters float64  `json:"distance_meters" yaml:"distance_meters"`
}

// DuplicateGroup is a transient set of two or more records believed to denote
// the same place. It is rebuilt on every run and never persisted.
type DuplicateGroup struct {
	ID       string            `json:"id" yaml:"id"`
	Category Category          `json:"category" yaml:"category"`
	Reason   string            `json:"reason" yaml:"reason"`
	Members  []models.Location `json:"members" yaml:"members"`
	Pairs    []PairMatch       `json:"pairs" yaml:"pairs"`
	// DistanceMeters is the largest known pair distance, or geo.UnknownDistance.
	DistanceMeters float64 `json:"distance_meters" yaml:"distance_meters"`
}

// MemberIDs lists member ids in group order.
func (g *DuplicateGroup) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i := range g.Members {
		ids[i] = g.Members[i].ID
	}
	return ids
}

func (g *DuplicateGroup) add(loc models.Location, m PairMatch) {
	g.Members = append(g.Members, loc)
	g.Pairs = append(g.Pairs, m)

	// a group is only as confident as its weakest pair
	if g.Category == "" || (g.Category == HighConfidence && m.Category == MediumConfidence) {
		g.Category = m.Category
	}
	if !strings.Contains(g.Reason, m.Reason) {
		if g.Reason != "" {
			g.Reason += "; "
		}
		g.Reason += m.Reason
	}
	if m.DistanceMeters > g.DistanceMeters {
		g.DistanceMeters = m.DistanceMeters
	}
}

type coordState int

const (
	coordsMissing coordState = iota
	coordsSentinel
	coordsValid
)

// candidate carries the per-record values every rule compares, computed once.
type candidate struct {
	loc      *models.Location
	key      string
	postcode string
	website  string
	host     string
	city     string
	coords   coordState
	lat, lon float64
}

// Engine applies the ordered match rules to every pair of records.
type Engine struct {
	rules Rules
}

// NewEngine creates a match engine.
func NewEngine(rules Rules) *Engine {
	return &Engine{rules: rules}
}

// Rules returns the thresholds the engine runs with.
func (e *Engine) Rules() Rules {
	return e.rules
}

// Classify evaluates a single pair. ok is false when the pair is not a
// duplicate candidate at all.
func (e *Engine) Classify(a, b *models.Location) (PairMatch, bool) {
	ca, cb := e.prepare(a), e.prepare(b)
	return e.classify(&ca, &cb)
}

// Detect groups records believed to be the same place. Every record appears
// in at most one group. Pair evaluation runs in parallel; grouping is a
// greedy pass over a visited set owned by this call.
func (e *Engine) Detect(ctx context.Context, records []models.Location) ([]DuplicateGroup, error) {
	cands := make([]candidate, len(records))
	for i := range records {
		cands[i] = e.prepare(&records[i])
	}

	hits := make([][]pairHit, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.rules.Workers, 1))
	for i := range cands {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var row []pairHit
			for j := i + 1; j < len(cands); j++ {
				if m, ok := e.classify(&cands[i], &cands[j]); ok {
					row = append(row, pairHit{j: j, match: m})
				}
			}
			hits[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("match: pair evaluation: %w", err)
	}

	return groupPairs(records, hits), nil
}

type pairHit struct {
	j     int
	match PairMatch
}

// groupPairs forms groups tier by tier so that a report-only pairing never
// consumes a record that also has a mergeable duplicate. A record joins a
// mergeable group only when it matches every member already in it; any
// survivor picked later must be a direct merge candidate of each loser.
func groupPairs(records []models.Location, hits [][]pairHit) []DuplicateGroup {
	visited := make([]bool, len(records))
	var groups []DuplicateGroup

	for tier := 0; tier <= 2; tier++ {
		for i := range records {
			if visited[i] {
				continue
			}
			var group *DuplicateGroup
			members := []int{i}
			for _, h := range hits[i] {
				if visited[h.j] || h.match.Category.tier() != tier {
					continue
				}
				if tier == 0 && !mergeableWithAll(hits, members[1:], h.j) {
					continue
				}
				if group == nil {
					group = &DuplicateGroup{
						ID:             fmt.Sprintf("GRP-%d", len(groups)+1),
						Members:        []models.Location{records[i]},
						DistanceMeters: geo.UnknownDistance,
					}
				}
				group.add(records[h.j], h.match)
				members = append(members, h.j)
				visited[h.j] = true
			}
			if group != nil {
				visited[i] = true
				groups = append(groups, *group)
			}
		}
	}
	return groups
}

func mergeableWithAll(hits [][]pairHit, members []int, j int) bool {
	for _, m := range members {
		if !mergeablePair(hits, m, j) {
			return false
		}
	}
	return true
}

// mergeablePair looks up the evaluated pair (a, b); hits only hold j > i.
func mergeablePair(hits [][]pairHit, a, b int) bool {
	lo, hi := min(a, b), max(a, b)
	for _, h := range hits[lo] {
		if h.j == hi {
			return h.match.Category.Mergeable()
		}
	}
	return false
}

func (e *Engine) prepare(loc *models.Location) candidate {
	key := normalize.Name(loc.Name)
	if key == "" {
		key = normalize.Compact(loc.Name)
	}
	website := normalize.Website(loc.Website)

	c := candidate{
		loc:      loc,
		key:      key,
		postcode: normalize.Postcode(loc.Postcode),
		website:  website,
		host:     normalize.Host(website),
		city:     strings.ToLower(strings.TrimSpace(loc.City)),
	}
	if lat, lon, ok := loc.Coordinates(); ok {
		c.lat, c.lon = lat, lon
		if geo.IsGeocoded(lat, lon) {
			c.coords = coordsValid
		} else {
			c.coords = coordsSentinel
		}
	}
	return c
}

func (e *Engine) classify(a, b *candidate) (PairMatch, bool) {
	la, lb := utf8.RuneCountInString(a.key), utf8.RuneCountInString(b.key)
	if la == 0 || lb == 0 {
		return PairMatch{}, false
	}
	sim := similarity.Similarity(a.key, b.key)
	if max(la, lb) < e.rules.ShortNameLength {
		if a.key != b.key {
			return PairMatch{}, false
		}
	} else if sim < e.rules.NameSimilarityThreshold {
		return PairMatch{}, false
	}

	m := PairMatch{A: a.loc.ID, B: b.loc.ID, Similarity: sim, DistanceMeters: geo.UnknownDistance}
	if !e.applyRules(a, b, &m) {
		return PairMatch{}, false
	}

	if m.Category.Mergeable() && a.website != "" && b.website != "" && a.website != b.website {
		m.Category = NameCollision
		m.Reason += " [website conflict]"
	}
	return m, true
}

// applyRules runs the ordered decision list; the first matching rule wins.
func (e *Engine) applyRules(a, b *candidate, m *PairMatch) bool {
	r := e.rules

	if a.website != "" && a.website == b.website && !r.isGeneric(a.host) && m.Similarity >= r.WebDomainMinSimilarity {
		m.Category, m.Reason = HighConfidence, fmt.Sprintf("exact web domain (%s)", a.website)
		return true
	}

	if a.postcode != "" && a.postcode == b.postcode && !e.ambiguousShortNames(a.key, b.key) &&
		m.Similarity > r.PostcodeMinSimilarity {
		m.Category = HighConfidence
		m.Reason = fmt.Sprintf("postal code + name similarity %.0f%%", m.Similarity*100)
		return true
	}

	switch {
	case a.coords == coordsValid && b.coords == coordsValid:
		d := geo.DistanceMeters(a.lat, a.lon, b.lat, b.lon)
		m.DistanceMeters = d
		switch {
		case d < r.ProximityMeters:
			m.Category, m.Reason = MediumConfidence, fmt.Sprintf("close proximity (%.0fm)", d)
		case d > r.CoordinateErrorMeters && (a.city == "" || b.city == "" || a.city == b.city):
			m.Category = CoordinateError
			m.Reason = fmt.Sprintf("name match but implausibly distant (%.0fkm), likely bad geocoding", d/1000)
		default:
			m.Category = NameCollision
			m.Reason = fmt.Sprintf("generic name reused in a different town (%.0fkm)", d/1000)
		}
		return true

	case a.coords == coordsValid && b.coords == coordsSentinel,
		a.coords == coordsSentinel && b.coords == coordsValid:
		m.Category, m.Reason = CoordinateError, "name match but one record has ungeocoded (0,0) coordinates"
		return true
	}

	if a.city != "" && a.city == b.city &&
		min(utf8.RuneCountInString(a.key), utf8.RuneCountInString(b.key)) > r.CityFallbackMinNameLength {
		m.Category, m.Reason = MediumConfidence, "city match, missing coordinates"
		return true
	}
	return false
}

// ambiguousShortNames: two different names both under the short-name limit.
func (e *Engine) ambiguousShortNames(a, b string) bool {
	return a != b &&
		utf8.RuneCountInString(a) < e.rules.ShortNameLength &&
		utf8.RuneCountInString(b) < e.rules.ShortNameLength
}

// Package survivor picks the canonical record of a duplicate group.
package survivor

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"location-dedupe/internal/geo"
	"location-dedupe/internal/models"
	"location-dedupe/internal/normalize"
)

// ErrEmptyGroup is returned when there is nothing to select from.
var ErrEmptyGroup = errors.New("survivor: empty group")

// Score rates a record by how complete and authoritative its data is.
func Score(loc *models.Location) int {
	score := 0
	if loc.IsManaged {
		score += 50
	}
	if len(normalize.Website(loc.Website)) > 5 {
		score += 10
	}
	if strings.TrimSpace(loc.Phone) != "" {
		score += 5
	}
	if normalize.ValidPostcode(normalize.Postcode(loc.Postcode)) {
		score += 5
	}
	if strings.TrimSpace(loc.City) != "" {
		score += 2
	}
	if lat, lon, ok := loc.Coordinates(); ok && geo.IsGeocoded(lat, lon) {
		score += 2
	}
	return score
}

// Selection is the outcome of survivor selection for one group.
type Selection struct {
	Survivor models.Location   `json:"survivor" yaml:"survivor"`
	Losers   []models.Location `json:"losers" yaml:"losers"`
	Scores   map[string]int    `json:"scores" yaml:"scores"`
}

// Select returns exactly one survivor: highest score, then most tenants, then
// the lexicographically smallest id. The result does not depend on the order
// of members.
func Select(members []models.Location) (Selection, error) {
	if len(members) == 0 {
		return Selection{}, ErrEmptyGroup
	}

	ranked := make([]models.Location, len(members))
	copy(ranked, members)
	scores := make(map[string]int, len(ranked))
	for i := range ranked {
		scores[ranked[i].ID] = Score(&ranked[i])
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return outranks(&ranked[i], &ranked[j], scores)
	})

	return Selection{
		Survivor: ranked[0],
		Losers:   ranked[1:],
		Scores:   scores,
	}, nil
}

func outranks(a, b *models.Location, scores map[string]int) bool {
	if scores[a.ID] != scores[b.ID] {
		return scores[a.ID] > scores[b.ID]
	}
	if a.TenantCount != b.TenantCount {
		return a.TenantCount > b.TenantCount
	}
	return a.ID < b.ID
}

// RationaleFor explains why the survivor beat the given loser.
func (s *Selection) RationaleFor(loserID string) string {
	var loser *models.Location
	for i := range s.Losers {
		if s.Losers[i].ID == loserID {
			loser = &s.Losers[i]
			break
		}
	}
	if loser == nil {
		return ""
	}

	sv, lv := s.Scores[s.Survivor.ID], s.Scores[loser.ID]
	switch {
	case sv != lv:
		return fmt.Sprintf("score %d vs %d", sv, lv)
	case s.Survivor.TenantCount != loser.TenantCount:
		return fmt.Sprintf("tie-break: more tenants (%d vs %d)", s.Survivor.TenantCount, loser.TenantCount)
	default:
		return "tie-break: lowest id"
	}
}

// LoserIDs lists loser ids in rank order.
func (s *Selection) LoserIDs() []string {
	ids := make([]string, len(s.Losers))
	for i := range s.Losers {
		ids[i] = s.Losers[i].ID
	}
	return ids
}

package match

import (
	"errors"
	"fmt"
	"strings"
)

// Category is the confidence a pair (or group) of records denotes one place.
type Category string

const (
	HighConfidence   Category = "HIGH_CONFIDENCE"
	MediumConfidence Category = "MEDIUM_CONFIDENCE"
	CoordinateError  Category = "COORDINATE_ERROR"
	NameCollision    Category = "NAME_COLLISION"
)

// Mergeable reports whether groups of this category may reach the merge executor.
func (c Category) Mergeable() bool {
	return c == HighConfidence || c == MediumConfidence
}

// tier orders grouping passes: mergeable first, then integrity issues, then collisions.
func (c Category) tier() int {
	switch c {
	case HighConfidence, MediumConfidence:
		return 0
	case CoordinateError:
		return 1
	default:
		return 2
	}
}

// DefaultGenericDomains are shared platform, retailer and agent domains that
// many unrelated locations legitimately list as their website.
var DefaultGenericDomains = []string{
	"lidl.co.uk", "home.bargains", "completelyretail.co.uk", "aldi.co.uk",
	"tesco.com", "asda.com", "sainsburys.co.uk", "morrisons.com",
	"costa.co.uk", "starbucks.co.uk", "mcdonalds.com", "boots.com",
	"next.co.uk", "marksandspencer.com", "argos.co.uk", "currys.co.uk",
	"savills.com", "knightfrank.co.uk", "cushmanwakefield.com", "cbre.co.uk",
	"jll.co.uk", "colliers.com", "avisonyoung.co.uk", "completelygroup.com",
	"wikipedia.org", "facebook.com", "instagram.com", "twitter.com", "x.com",
	"youtube.com", "linkedin.com", "tiktok.com", "google.com",
	"traffordcentre.co.uk", "themetrocentre.co.uk", "westfield.com",
	"whitecityretailpark.co.uk",
}

// Rules holds the tunable thresholds of the match rule engine.
type Rules struct {
	// NameSimilarityThreshold gates which pairs are considered at all.
	NameSimilarityThreshold float64
	// WebDomainMinSimilarity guards the exact web domain rule.
	WebDomainMinSimilarity float64
	// PostcodeMinSimilarity must be exceeded by postcode matches.
	PostcodeMinSimilarity float64
	// ShortNameLength: names shorter than this must match exactly.
	ShortNameLength int
	// CityFallbackMinNameLength: match keys must be longer than this for the city rule.
	CityFallbackMinNameLength int
	ProximityMeters           float64
	CoordinateErrorMeters     float64
	GenericDomains            []string
	// Workers bounds parallel pair evaluation.
	Workers int
}

// DefaultRules returns the production thresholds.
func DefaultRules() Rules {
	return Rules{
		NameSimilarityThreshold:   0.7,
		WebDomainMinSimilarity:    0.4,
		PostcodeMinSimilarity:     0.75,
		ShortNameLength:           5,
		CityFallbackMinNameLength: 5,
		ProximityMeters:           1000,
		CoordinateErrorMeters:     50000,
		GenericDomains:            DefaultGenericDomains,
		Workers:                   4,
	}
}

// Validate checks thresholds are in range.
func (r Rules) Validate() error {
	var errs []error
	for _, th := range []struct {
		name  string
		value float64
	}{
		{"name similarity threshold", r.NameSimilarityThreshold},
		{"web domain min similarity", r.WebDomainMinSimilarity},
		{"postcode min similarity", r.PostcodeMinSimilarity},
	} {
		if th.value < 0 || th.value > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", th.name, th.value))
		}
	}
	if r.ProximityMeters <= 0 {
		errs = append(errs, fmt.Errorf("proximity meters must be positive, got %v", r.ProximityMeters))
	}
	if r.CoordinateErrorMeters <= r.ProximityMeters {
		errs = append(errs, fmt.Errorf("coordinate error meters (%v) must exceed proximity meters (%v)",
			r.CoordinateErrorMeters, r.ProximityMeters))
	}
	if r.ShortNameLength < 0 || r.CityFallbackMinNameLength < 0 {
		errs = append(errs, errors.New("name length limits must not be negative"))
	}
	return errors.Join(errs...)
}

// isGeneric reports whether host is, or is a subdomain of, a blocklisted domain.
func (r Rules) isGeneric(host string) bool {
	for _, d := range r.GenericDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

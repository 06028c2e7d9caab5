package merge

import (
	"fmt"
	"sort"

	"location-dedupe/internal/models"
)

// field describes one enrichable column. Identity fields (name, postcode,
// coordinates) are deliberately absent: the survivor's values are authoritative.
type field struct {
	column string
	get    func(*models.Location) any
	set    func(*models.Location, any) error
}

func stringField(column string, ptr func(*models.Location) *string) field {
	return field{
		column: column,
		get:    func(l *models.Location) any { return *ptr(l) },
		set: func(l *models.Location, v any) error {
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("merge: %s expects a string, got %T", column, v)
			}
			*ptr(l) = s
			return nil
		},
	}
}

func intField(column string, ptr func(*models.Location) *int) field {
	return field{
		column: column,
		get:    func(l *models.Location) any { return *ptr(l) },
		set: func(l *models.Location, v any) error {
			n, ok := v.(int)
			if !ok {
				return fmt.Errorf("merge: %s expects an int, got %T", column, v)
			}
			*ptr(l) = n
			return nil
		},
	}
}

var registry = map[string]field{
	"website":        stringField("website", func(l *models.Location) *string { return &l.Website }),
	"phone":          stringField("phone", func(l *models.Location) *string { return &l.Phone }),
	"email":          stringField("email", func(l *models.Location) *string { return &l.Email }),
	"description":    stringField("description", func(l *models.Location) *string { return &l.Description }),
	"twitter":        stringField("twitter", func(l *models.Location) *string { return &l.Twitter }),
	"facebook":       stringField("facebook", func(l *models.Location) *string { return &l.Facebook }),
	"instagram":      stringField("instagram", func(l *models.Location) *string { return &l.Instagram }),
	"linkedin":       stringField("linkedin", func(l *models.Location) *string { return &l.LinkedIn }),
	"tiktok":         stringField("tiktok", func(l *models.Location) *string { return &l.TikTok }),
	"image":          stringField("image_url", func(l *models.Location) *string { return &l.ImageURL }),
	"parking_spaces": intField("parking_spaces", func(l *models.Location) *int { return &l.ParkingSpaces }),
	"footfall":       intField("footfall", func(l *models.Location) *int { return &l.Footfall }),
}

// DefaultBackfillFields is the whitelist of enrichable fields, in update order.
var DefaultBackfillFields = []string{
	"website", "phone", "email", "description",
	"twitter", "facebook", "instagram", "linkedin", "tiktok",
	"image", "parking_spaces", "footfall",
}

// KnownFields lists every field name the registry supports.
func KnownFields() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateFields rejects names outside the registry.
func ValidateFields(fields []string) error {
	for _, name := range fields {
		if _, ok := registry[name]; !ok {
			return fmt.Errorf("merge: unknown backfill field %q (known: %v)", name, KnownFields())
		}
	}
	return nil
}

// FieldUpdate is one value copied from a loser into its survivor.
type FieldUpdate struct {
	Field  string
	Column string
	Value  any
}

// Backfill returns the updates that fill the survivor's empty fields from the
// loser. A survivor value is replaced only when it is nil, "" or 0.
func Backfill(survivor, loser *models.Location, fields []string) []FieldUpdate {
	var updates []FieldUpdate
	for _, name := range fields {
		f, ok := registry[name]
		if !ok {
			continue
		}
		if isEmpty(f.get(survivor)) && !isEmpty(f.get(loser)) {
			updates = append(updates, FieldUpdate{Field: name, Column: f.column, Value: f.get(loser)})
		}
	}
	return updates
}

// Apply writes updates onto a location.
func Apply(loc *models.Location, updates []FieldUpdate) error {
	for _, u := range updates {
		f, ok := registry[u.Field]
		if !ok {
			return fmt.Errorf("merge: unknown backfill field %q", u.Field)
		}
		if err := f.set(loc, u.Value); err != nil {
			return err
		}
	}
	return nil
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case int:
		return x == 0
	default:
		return false
	}
}

func fieldNames(updates []FieldUpdate) []string {
	names := make([]string, len(updates))
	for i, u := range updates {
		names[i] = u.Field
	}
	return names
}

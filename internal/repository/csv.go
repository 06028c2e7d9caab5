package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"location-dedupe/internal/models"
)

// locationSetters maps CSV header names onto Location fields. Unknown columns
// are ignored.
var locationSetters = map[string]func(*models.Location, string) error{
	"id":               func(l *models.Location, v string) error { l.ID = v; return nil },
	"name":             func(l *models.Location, v string) error { l.Name = v; return nil },
	"postcode":         func(l *models.Location, v string) error { l.Postcode = v; return nil },
	"city":             func(l *models.Location, v string) error { l.City = v; return nil },
	"latitude":         func(l *models.Location, v string) error { return parseCoord(&l.Latitude, v) },
	"longitude":        func(l *models.Location, v string) error { return parseCoord(&l.Longitude, v) },
	"website":          func(l *models.Location, v string) error { l.Website = v; return nil },
	"phone":            func(l *models.Location, v string) error { l.Phone = v; return nil },
	"email":            func(l *models.Location, v string) error { l.Email = v; return nil },
	"description":      func(l *models.Location, v string) error { l.Description = v; return nil },
	"twitter":          func(l *models.Location, v string) error { l.Twitter = v; return nil },
	"facebook":         func(l *models.Location, v string) error { l.Facebook = v; return nil },
	"instagram":        func(l *models.Location, v string) error { l.Instagram = v; return nil },
	"linkedin":         func(l *models.Location, v string) error { l.LinkedIn = v; return nil },
	"tiktok":           func(l *models.Location, v string) error { l.TikTok = v; return nil },
	"image":            func(l *models.Location, v string) error { l.ImageURL = v; return nil },
	"parking_spaces":   func(l *models.Location, v string) error { return parseInt(&l.ParkingSpaces, v) },
	"footfall":         func(l *models.Location, v string) error { return parseInt(&l.Footfall, v) },
	"is_managed":       func(l *models.Location, v string) error { return parseBool(&l.IsManaged, v) },
	"management":       func(l *models.Location, v string) error { l.Management = v; return nil },
	"management_email": func(l *models.Location, v string) error { l.ManagementEmail = v; return nil },
}

// ReadLocationsCSV parses locations from a CSV stream with a header row. Empty
// latitude or longitude cells leave the coordinate unset.
func ReadLocationsCSV(r io.Reader) ([]models.Location, error) {
	var locations []models.Location
	err := readCSV(r, []string{"id", "name"}, func(header, record []string) error {
		var loc models.Location
		for i, col := range header {
			set, ok := locationSetters[col]
			if !ok || i >= len(record) {
				continue
			}
			if err := set(&loc, strings.TrimSpace(record[i])); err != nil {
				return fmt.Errorf("column %s: %w", col, err)
			}
		}
		if loc.Latitude == nil || loc.Longitude == nil {
			loc.Latitude, loc.Longitude = nil, nil
		}
		locations = append(locations, loc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return locations, nil
}

// ReadTenantsCSV parses tenants (id, location_id, name, category) from a CSV
// stream with a header row.
func ReadTenantsCSV(r io.Reader) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := readCSV(r, []string{"id", "location_id", "name"}, func(header, record []string) error {
		var t models.Tenant
		for i, col := range header {
			if i >= len(record) {
				break
			}
			v := strings.TrimSpace(record[i])
			switch col {
			case "id":
				t.ID = v
			case "location_id":
				t.LocationID = v
			case "name":
				t.Name = v
			case "category":
				t.Category = v
			}
		}
		tenants = append(tenants, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

func readCSV(r io.Reader, required []string, row func(header, record []string) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Allow variable number of fields

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("repository: failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	for _, col := range required {
		if !containsColumn(header, col) {
			return fmt.Errorf("repository: missing required column %q", col)
		}
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("repository: failed to read record: %w", err)
		}
		if err := row(header, record); err != nil {
			return fmt.Errorf("repository: line %d: %w", line, err)
		}
	}
}

func containsColumn(header []string, col string) bool {
	for _, h := range header {
		if h == col {
			return true
		}
	}
	return false
}

func parseCoord(dst **float64, v string) error {
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid coordinate %q", v)
	}
	*dst = &f
	return nil
}

func parseInt(dst *int, v string) error {
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid integer %q", v)
	}
	*dst = n
	return nil
}

func parseBool(dst *bool, v string) error {
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid boolean %q", v)
	}
	*dst = b
	return nil
}

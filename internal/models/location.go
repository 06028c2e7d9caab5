package models

// Location represents one physical retail site (shopping centre, retail park) together with the enrichment fields scraped for it.
type Location struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	Postcode  string   `json:"postcode,omitempty" yaml:"postcode,omitempty"`
	City      string   `json:"city,omitempty" yaml:"city,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty" yaml:"longitude,omitempty"`

	Website       string `json:"website,omitempty" yaml:"website,omitempty"`
	Phone         string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email         string `json:"email,omitempty" yaml:"email,omitempty"`
	Description   string `json:"description,omitempty" yaml:"description,omitempty"`
	Twitter       string `json:"twitter,omitempty" yaml:"twitter,omitempty"`
	Facebook      string `json:"facebook,omitempty" yaml:"facebook,omitempty"`
	Instagram     string `json:"instagram,omitempty" yaml:"instagram,omitempty"`
	LinkedIn      string `json:"linkedin,omitempty" yaml:"linkedin,omitempty"`
	TikTok        string `json:"tiktok,omitempty" yaml:"tiktok,omitempty"`
	ImageURL      string `json:"image,omitempty" yaml:"image,omitempty"`
	ParkingSpaces int    `json:"parking_spaces,omitempty" yaml:"parking_spaces,omitempty"`
	Footfall      int    `json:"footfall,omitempty" yaml:"footfall,omitempty"`

	IsManaged       bool   `json:"is_managed" yaml:"is_managed"`
	Management      string `json:"management,omitempty" yaml:"management,omitempty"`
	ManagementEmail string `json:"management_email,omitempty" yaml:"management_email,omitempty"`

	TenantCount int `json:"tenant_count" yaml:"tenant_count"`
}

// Coordinates returns the stored coordinate pair. ok is false when either
// component was never recorded; a stored (0,0) is returned as-is.
func (l *Location) Coordinates() (lat, lon float64, ok bool) {
	if l.Latitude == nil || l.Longitude == nil {
		return 0, 0, false
	}
	return *l.Latitude, *l.Longitude, true
}

// SetCoordinates stores a coordinate pair.
func (l *Location) SetCoordinates(lat, lon float64) {
	l.Latitude = &lat
	l.Longitude = &lon
}

// Label renders the location as "Name (id)" for log lines and reports.
func (l *Location) Label() string {
	return l.Name + " (" + l.ID + ")"
}

// Tenant is a business occupying a unit inside a Location.
type Tenant struct {
	ID         string `json:"id"`
	LocationID string `json:"location_id"`
	Name       string `json:"name"`
	Category   string `json:"category,omitempty"`
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"location-dedupe/internal/merge"
	"location-dedupe/internal/models"

	"github.com/codeGROOVE-dev/retry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// Repository is the PostgreSQL datastore for locations and tenants.
type Repository struct {
	db DB
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// Connect opens a pool and waits for the database to answer, retrying a
// bounded number of times while it starts up.
func Connect(ctx context.Context, dsn string, attempts uint) (*pgxpool.Pool, error) {
	pool, err := retry.DoWithData(
		func() (*pgxpool.Pool, error) {
			pool, err := pgxpool.New(ctx, dsn)
			if err != nil {
				return nil, err
			}
			if err := pool.Ping(ctx); err != nil {
				pool.Close()
				return nil, err
			}
			return pool, nil
		},
		retry.Context(ctx),
		retry.Attempts(max(attempts, 1)),
		retry.Delay(500*time.Millisecond),
		retry.MaxJitter(250*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Msg("database not ready, retrying")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("repository: cannot connect to database: %w", err)
	}
	return pool, nil
}

const locationColumns = `
			l.id,
			l.name,
			COALESCE(l.postcode, ''),
			COALESCE(l.city, ''),
			COALESCE(l.latitude, 0),
			COALESCE(l.longitude, 0),
			l.latitude IS NOT NULL AND l.longitude IS NOT NULL,
			COALESCE(l.website, ''),
			COALESCE(l.phone, ''),
			COALESCE(l.email, ''),
			COALESCE(l.description, ''),
			COALESCE(l.twitter, ''),
			COALESCE(l.facebook, ''),
			COALESCE(l.instagram, ''),
			COALESCE(l.linkedin, ''),
			COALESCE(l.tiktok, ''),
			COALESCE(l.image_url, ''),
			COALESCE(l.parking_spaces, 0),
			COALESCE(l.footfall, 0),
			l.is_managed,
			COALESCE(l.management, ''),
			COALESCE(l.management_email, '')`

// locationScan holds the scan targets for one locations row. Coordinates are
// scanned as plain values plus a presence flag and turned into pointers after.
type locationScan struct {
	loc      models.Location
	lat, lon float64
	geocoded bool
}

func (s *locationScan) dest() []any {
	l := &s.loc
	return []any{
		&l.ID, &l.Name, &l.Postcode, &l.City,
		&s.lat, &s.lon, &s.geocoded,
		&l.Website, &l.Phone, &l.Email, &l.Description,
		&l.Twitter, &l.Facebook, &l.Instagram, &l.LinkedIn, &l.TikTok, &l.ImageURL,
		&l.ParkingSpaces, &l.Footfall,
		&l.IsManaged, &l.Management, &l.ManagementEmail,
	}
}

func (s *locationScan) location() models.Location {
	if s.geocoded {
		s.loc.SetCoordinates(s.lat, s.lon)
	}
	return s.loc
}

// ListLocations returns every location with its tenant count, ordered by id.
func (r *Repository) ListLocations(ctx context.Context) ([]models.Location, error) {
	sql := `
		SELECT` + locationColumns + `,
			(SELECT COUNT(*) FROM tenants t WHERE t.location_id = l.id)
		FROM locations l
		ORDER BY l.id
	`

	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list locations: %w", err)
	}
	defer rows.Close()

	locations := []models.Location{}
	for rows.Next() {
		var s locationScan
		if err := rows.Scan(append(s.dest(), &s.loc.TenantCount)...); err != nil {
			return nil, fmt.Errorf("repository: failed to scan location: %w", err)
		}
		locations = append(locations, s.location())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating rows: %w", err)
	}

	return locations, nil
}

// ImportLocations bulk loads locations with COPY.
func (r *Repository) ImportLocations(ctx context.Context, locations []models.Location) (int64, error) {
	n, err := r.db.CopyFrom(
		ctx,
		pgx.Identifier{"locations"},
		[]string{
			"id", "name", "postcode", "city", "latitude", "longitude",
			"website", "phone", "email", "description",
			"twitter", "facebook", "instagram", "linkedin", "tiktok", "image_url",
			"parking_spaces", "footfall", "is_managed", "management", "management_email",
		},
		pgx.CopyFromSlice(len(locations), func(i int) ([]any, error) {
			l := locations[i]
			return []any{
				l.ID, l.Name, l.Postcode, l.City, l.Latitude, l.Longitude,
				l.Website, l.Phone, l.Email, l.Description,
				l.Twitter, l.Facebook, l.Instagram, l.LinkedIn, l.TikTok, l.ImageURL,
				l.ParkingSpaces, l.Footfall, l.IsManaged, l.Management, l.ManagementEmail,
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to copy locations: %w", err)
	}
	return n, nil
}

// ImportTenants bulk loads tenants with COPY.
func (r *Repository) ImportTenants(ctx context.Context, tenants []models.Tenant) (int64, error) {
	n, err := r.db.CopyFrom(
		ctx,
		pgx.Identifier{"tenants"},
		[]string{"id", "location_id", "name", "category"},
		pgx.CopyFromSlice(len(tenants), func(i int) ([]any, error) {
			t := tenants[i]
			return []any{t.ID, t.LocationID, t.Name, t.Category}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to copy tenants: %w", translate(err))
	}
	return n, nil
}

// Import loads locations and their tenants in one transaction, so a failed
// tenant load leaves no orphaned locations behind.
func (r *Repository) Import(ctx context.Context, locations []models.Location, tenants []models.Tenant) (int64, int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	in := NewRepository(tx)
	nLocations, err := in.ImportLocations(ctx, locations)
	if err != nil {
		return 0, 0, err
	}
	var nTenants int64
	if len(tenants) > 0 {
		if nTenants, err = in.ImportTenants(ctx, tenants); err != nil {
			return 0, 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("repository: failed to commit import: %w", translate(err))
	}
	return nLocations, nTenants, nil
}

// TenantsByLocation lists the tenants attached to one location.
func (r *Repository) TenantsByLocation(ctx context.Context, locationID string) ([]models.Tenant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, location_id, name, COALESCE(category, '')
		FROM tenants
		WHERE location_id = $1
		ORDER BY name
	`, locationID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []models.Tenant{}
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.LocationID, &t.Name, &t.Category); err != nil {
			return nil, fmt.Errorf("repository: failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating rows: %w", err)
	}
	return tenants, nil
}

// InTx runs fn in a single database transaction.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx merge.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", translate(err))
	}
	return nil
}

// pgTx implements merge.Tx on top of a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LocationForUpdate(ctx context.Context, id string) (*models.Location, error) {
	sql := `
		SELECT` + locationColumns + `
		FROM locations l
		WHERE l.id = $1
		FOR UPDATE
	`

	var s locationScan
	if err := t.tx.QueryRow(ctx, sql, id).Scan(s.dest()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("repository: location %s: %w", id, merge.ErrLocationNotFound)
		}
		return nil, fmt.Errorf("repository: failed to lock location: %w", err)
	}
	loc := s.location()
	return &loc, nil
}

func (t *pgTx) ConflictingTenants(ctx context.Context, fromID, toID string) ([]models.Tenant, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT f.id, f.location_id, f.name, COALESCE(f.category, '')
		FROM tenants f
		JOIN tenants s ON s.location_id = $2 AND lower(s.name) = lower(f.name)
		WHERE f.location_id = $1
		ORDER BY f.name
	`, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to check tenant names: %w", err)
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var tn models.Tenant
		if err := rows.Scan(&tn.ID, &tn.LocationID, &tn.Name, &tn.Category); err != nil {
			return nil, fmt.Errorf("repository: failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating rows: %w", err)
	}
	return tenants, nil
}

func (t *pgTx) DeleteTenants(ctx context.Context, ids []string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM tenants WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to delete tenants: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) ReassignTenants(ctx context.Context, fromID, toID string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE tenants SET location_id = $2 WHERE location_id = $1`, fromID, toID)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to reassign tenants: %w", translate(err))
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) UpdateLocation(ctx context.Context, id string, updates []merge.FieldUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	sets := make([]string, len(updates))
	args := make([]any, 0, len(updates)+1)
	for i, u := range updates {
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{u.Column}.Sanitize(), i+1)
		args = append(args, u.Value)
	}
	args = append(args, id)
	sql := fmt.Sprintf("UPDATE locations SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("repository: failed to update location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repository: location %s: %w", id, merge.ErrLocationNotFound)
	}
	return nil
}

func (t *pgTx) DeleteLocation(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repository: location %s: %w", id, merge.ErrLocationNotFound)
	}
	return nil
}

// translate maps constraint violations onto domain errors.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", merge.ErrTenantConflict, pgErr.ConstraintName)
	}
	return err
}

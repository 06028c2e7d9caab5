package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"location-dedupe/internal/config"
	"location-dedupe/internal/models"
	"location-dedupe/internal/repository"
)

func main() {
	file := flag.String("file", "", "Path to the locations CSV file to import")
	tenants := flag.String("tenants", "", "Optional path to a tenants CSV file")
	configDir := flag.String("config", "configs", "Directory holding app.env")
	flag.Parse()

	if *file == "" {
		fmt.Println("Error: --file flag is required")
		os.Exit(1)
	}

	fmt.Printf("Starting import from file: %s\n", *file)

	if err := run(context.Background(), *configDir, *file, *tenants); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configDir, locationsFile, tenantsFile string) error {
	locations, err := parseFile(locationsFile, repository.ReadLocationsCSV)
	if err != nil {
		return fmt.Errorf("parsing locations: %w", err)
	}
	fmt.Printf("Parsed %d locations\n", len(locations))

	var tenants []models.Tenant
	if tenantsFile != "" {
		if tenants, err = parseFile(tenantsFile, repository.ReadTenantsCSV); err != nil {
			return fmt.Errorf("parsing tenants: %w", err)
		}
		fmt.Printf("Parsed %d tenants\n", len(tenants))
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pool, err := repository.Connect(ctx, cfg.DBSource, cfg.ConnectAttempts)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repository.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	repo := repository.NewRepository(pool)
	nLocations, nTenants, err := repo.Import(ctx, locations, tenants)
	if err != nil {
		return err
	}
	fmt.Printf("Inserted %d locations and %d tenants\n", nLocations, nTenants)

	return verifyImport(ctx, repo, len(locations))
}

func parseFile[T any](path string, parse func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return parse(f)
}

func verifyImport(ctx context.Context, repo *repository.Repository, imported int) error {
	locations, err := repo.ListLocations(ctx)
	if err != nil {
		return fmt.Errorf("failed to count records: %w", err)
	}
	if len(locations) < imported {
		return fmt.Errorf("record count mismatch: imported %d, found %d", imported, len(locations))
	}

	if len(locations) > 0 {
		sample := locations[0]
		fmt.Printf("Sample location: %s, %d tenants\n", sample.Label(), sample.TenantCount)
	}
	fmt.Printf("Successfully imported %d records (%d in table)\n", imported, len(locations))
	return nil
}

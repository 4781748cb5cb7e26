package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/planetlabs/go-stac"
)

// SeedCatalog holds a static catalog loaded from disk, used to populate
// the memory store at startup.
type SeedCatalog struct {
	Collections []*stac.Collection `json:"collections"`
	Items       []*stac.Item       `json:"items"`
}

// LoadSeed loads a seed catalog from a JSON file or from a directory of
// JSON files. Only files with a .json extension are processed; catalogs
// from multiple files are merged.
func LoadSeed(path string) (*SeedCatalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access seed path %q: %w", path, err)
	}

	if !info.IsDir() {
		return loadSeedFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed directory %q: %w", path, err)
	}

	merged := &SeedCatalog{}
	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		if !strings.HasSuffix(strings.ToLower(filename), ".json") {
			continue
		}

		filePath := filepath.Join(path, filename)
		seed, err := loadSeedFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load seed from %q: %w", filePath, err)
		}

		merged.Collections = append(merged.Collections, seed.Collections...)
		merged.Items = append(merged.Items, seed.Items...)
		loadedCount++
	}

	if loadedCount == 0 {
		return nil, fmt.Errorf("no seed files found in %q", path)
	}

	return merged, nil
}

// loadSeedFile loads a single seed catalog from a JSON file.
func loadSeedFile(filePath string) (*SeedCatalog, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var seed SeedCatalog
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if err := validateSeed(&seed); err != nil {
		return nil, fmt.Errorf("invalid seed catalog: %w", err)
	}

	return &seed, nil
}

// validateSeed checks that every document carries the identifiers the
// store needs and that every item references a known collection.
func validateSeed(seed *SeedCatalog) error {
	ids := make(map[string]bool, len(seed.Collections))
	for i, c := range seed.Collections {
		if c.Id == "" {
			return fmt.Errorf("collection at index %d has no id", i)
		}
		if ids[c.Id] {
			return fmt.Errorf("duplicate collection id %q", c.Id)
		}
		ids[c.Id] = true
	}

	for i, item := range seed.Items {
		if item.Id == "" {
			return fmt.Errorf("item at index %d has no id", i)
		}
		if item.Collection == "" {
			return fmt.Errorf("item %q has no collection", item.Id)
		}
		if !ids[item.Collection] {
			return fmt.Errorf("item %q references unknown collection %q", item.Id, item.Collection)
		}
	}

	return nil
}

// Package catalog loads the festival menu from a spreadsheet, falling back
// to the last menu cached on the till.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"sagra-pos/internal/cache"
	"sagra-pos/internal/logger"
	"sagra-pos/internal/models"
)

// Fetcher reads spreadsheet ranges.
type Fetcher interface {
	BatchGet(ctx context.Context, ranges ...string) ([]Sheet, error)
}

// Cache is the subset of the local cache the loader needs.
type Cache interface {
	GetJSON(ctx context.Context, key string, v any) (time.Time, error)
	PutJSON(ctx context.Context, key string, v any) error
}

// Source tells where a loaded catalog came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
)

// Result is a loaded catalog with its provenance.
type Result struct {
	Catalog  models.Catalog `json:"catalog"`
	Source   Source         `json:"source"`
	CachedAt time.Time      `json:"cached_at,omitempty"`
	Skipped  []string       `json:"skipped,omitempty"`
}

type Loader struct {
	fetcher   Fetcher
	cache     Cache
	rangeName string
	logger    *logger.Logger
}

func NewLoader(fetcher Fetcher, c Cache, rangeName string, log *logger.Logger) *Loader {
	return &Loader{
		fetcher:   fetcher,
		cache:     c,
		rangeName: rangeName,
		logger:    log,
	}
}

// Load fetches and validates the menu. Rows that fail mapping or validation
// are skipped and reported. When the spreadsheet cannot be read, the cached
// menu is returned instead.
func (l *Loader) Load(ctx context.Context, requestID string) (Result, error) {
	catalog, skipped, err := l.fetch(ctx)
	if err == nil {
		if err := l.cache.PutJSON(ctx, cache.KeyMenu, catalog); err != nil {
			l.logger.Error("menu_cache_failed", "Failed to cache menu", requestID, err, nil)
		}
		l.logger.Info("menu_loaded", fmt.Sprintf("Loaded %d menu items", len(catalog)), requestID, map[string]interface{}{
			"source":  SourceRemote,
			"skipped": len(skipped),
		})
		return Result{Catalog: catalog, Source: SourceRemote, Skipped: skipped}, nil
	}

	l.logger.Error("menu_fetch_failed", "Failed to fetch menu, using cached copy", requestID, err, nil)

	var cached models.Catalog
	cachedAt, cacheErr := l.cache.GetJSON(ctx, cache.KeyMenu, &cached)
	if cacheErr != nil {
		if errors.Is(cacheErr, cache.ErrMiss) {
			return Result{}, fmt.Errorf("%w: %v", models.ErrMenuUnavailable, err)
		}
		return Result{}, fmt.Errorf("%w: %v", models.ErrMenuUnavailable, cacheErr)
	}

	return Result{Catalog: cached, Source: SourceCache, CachedAt: cachedAt}, nil
}

func (l *Loader) fetch(ctx context.Context) (models.Catalog, []string, error) {
	sheets, err := l.fetcher.BatchGet(ctx, l.rangeName)
	if err != nil {
		return nil, nil, err
	}

	var sheet *Sheet
	for i := range sheets {
		if sheets[i].ID == l.rangeName || len(sheets) == 1 {
			sheet = &sheets[i]
			break
		}
	}
	if sheet == nil {
		return nil, nil, fmt.Errorf("range %q missing from response", l.rangeName)
	}

	return Build(sheet.Records)
}

// Build maps and validates records into a catalog ordered by display order.
// Duplicate keys keep the first occurrence.
func Build(records []Record) (models.Catalog, []string, error) {
	var (
		catalog models.Catalog
		skipped []string
		seen    = make(map[string]bool)
	)

	for i, rec := range records {
		item, err := ToMenuItem(rec, i+1)
		if err == nil {
			err = Validate(item)
		}
		if err == nil && seen[item.Key] {
			err = fmt.Errorf("row %d: duplicate item %q", i+1, item.Key)
		}
		if err != nil {
			skipped = append(skipped, err.Error())
			continue
		}
		seen[item.Key] = true
		catalog = append(catalog, item)
	}

	if len(catalog) == 0 {
		return nil, skipped, fmt.Errorf("no valid menu items in %d rows", len(records))
	}

	sort.SliceStable(catalog, func(i, j int) bool {
		return catalog[i].DisplayOrder < catalog[j].DisplayOrder
	})
	return catalog, skipped, nil
}

package service

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/nurpe/freight/internal/metrics"
	"github.com/nurpe/freight/internal/model"
)

type LocationStore interface {
	GetLocations(ctx context.Context, ids []int64) (map[int64]model.Location, error)
	UpsertLocations(ctx context.Context, locations []model.Location) error
	ListLocations(ctx context.Context) ([]model.Location, error)
}

// LocationLookup resolves location metadata from the external source.
// Unresolvable ids fail with ErrLookupFailed.
type LocationLookup interface {
	LookupLocation(ctx context.Context, token string, id int64) (model.Location, error)
}

// LocationCache is an optional read-through cache in front of the store.
type LocationCache interface {
	GetLocations(ctx context.Context, ids []int64) (map[int64]model.Location, error)
	SetLocations(ctx context.Context, locations []model.Location) error
}

type LocationRegistry struct {
	store   LocationStore
	lookup  LocationLookup
	cache   LocationCache
	group   singleflight.Group
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewLocationRegistry(store LocationStore, lookup LocationLookup, cache LocationCache, m *metrics.Metrics, log zerolog.Logger) *LocationRegistry {
	return &LocationRegistry{
		store:   store,
		lookup:  lookup,
		cache:   cache,
		metrics: m,
		log:     log.With().Str("component", "location_registry").Logger(),
	}
}

// Resolve returns the locations for ids. Ids that are neither stored nor
// resolvable by the lookup are returned in failed; they never abort the batch.
func (r *LocationRegistry) Resolve(ctx context.Context, ids []int64, token string) (map[int64]model.Location, []int64, error) {
	wanted := uniqueIDs(ids)
	result := make(map[int64]model.Location, len(wanted))
	if len(wanted) == 0 {
		return result, nil, nil
	}

	missing := wanted
	if r.cache != nil {
		cached, err := r.cache.GetLocations(ctx, missing)
		if err != nil {
			r.log.Warn().Err(err).Msg("location cache read failed")
		}
		missing = collect(result, cached, missing)
	}

	if len(missing) > 0 {
		stored, err := r.store.GetLocations(ctx, missing)
		if err != nil {
			return nil, nil, err
		}
		if r.cache != nil && len(stored) > 0 {
			r.setCache(ctx, values(stored))
		}
		missing = collect(result, stored, missing)
	}

	resolved, failed := r.fetch(ctx, missing, token)
	if len(resolved) > 0 {
		if err := r.save(ctx, resolved); err != nil {
			return nil, nil, err
		}
		for _, loc := range resolved {
			result[loc.ID] = loc
		}
	}
	return result, failed, nil
}

// Refresh looks up ids again and overwrites the stored metadata.
func (r *LocationRegistry) Refresh(ctx context.Context, ids []int64, token string) ([]model.Location, []int64, error) {
	resolved, failed := r.fetch(ctx, uniqueIDs(ids), token)
	if len(resolved) > 0 {
		if err := r.save(ctx, resolved); err != nil {
			return nil, nil, err
		}
	}
	return resolved, failed, nil
}

func (r *LocationRegistry) List(ctx context.Context) ([]model.Location, error) {
	return r.store.ListLocations(ctx)
}

func (r *LocationRegistry) fetch(ctx context.Context, ids []int64, token string) ([]model.Location, []int64) {
	var (
		resolved []model.Location
		failed   []int64
	)
	for _, id := range ids {
		value, err, _ := r.group.Do(strconv.FormatInt(id, 10), func() (interface{}, error) {
			return r.lookup.LookupLocation(ctx, token, id)
		})
		r.metrics.LocationLookup(err == nil)
		if err != nil {
			event := r.log.Warn()
			if !errors.Is(err, ErrLookupFailed) {
				event = r.log.Error()
			}
			event.Err(err).Int64("location_id", id).Msg("location lookup failed")
			failed = append(failed, id)
			continue
		}
		resolved = append(resolved, value.(model.Location))
	}
	return resolved, failed
}

func (r *LocationRegistry) save(ctx context.Context, locations []model.Location) error {
	if err := r.store.UpsertLocations(ctx, locations); err != nil {
		return err
	}
	if r.cache != nil {
		r.setCache(ctx, locations)
	}
	return nil
}

func (r *LocationRegistry) setCache(ctx context.Context, locations []model.Location) {
	if err := r.cache.SetLocations(ctx, locations); err != nil {
		r.log.Warn().Err(err).Msg("location cache write failed")
	}
}

func collect(result, found map[int64]model.Location, ids []int64) []int64 {
	missing := ids[:0:0]
	for _, id := range ids {
		if loc, ok := found[id]; ok {
			result[id] = loc
			continue
		}
		missing = append(missing, id)
	}
	return missing
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

func values(locations map[int64]model.Location) []model.Location {
	result := make([]model.Location, 0, len(locations))
	for _, loc := range locations {
		result = append(result, loc)
	}
	return result
}

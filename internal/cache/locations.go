package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nurpe/freight/internal/model"
)

const locationKeyPrefix = "freight:location:"

type LocationCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLocationCache(client *redis.Client, ttl time.Duration) *LocationCache {
	return &LocationCache{client: client, ttl: ttl}
}

func (c *LocationCache) GetLocations(ctx context.Context, ids []int64) (map[int64]model.Location, error) {
	result := make(map[int64]model.Location, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = locationKey(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var loc model.Location
		if err := json.Unmarshal([]byte(raw), &loc); err != nil {
			continue
		}
		result[ids[i]] = loc
	}
	return result, nil
}

func (c *LocationCache) SetLocations(ctx context.Context, locations []model.Location) error {
	if len(locations) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, loc := range locations {
		data, err := json.Marshal(loc)
		if err != nil {
			return err
		}
		pipe.Set(ctx, locationKey(loc.ID), data, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func locationKey(id int64) string {
	return locationKeyPrefix + strconv.FormatInt(id, 10)
}

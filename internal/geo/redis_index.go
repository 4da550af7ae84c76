package geo

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/parcelmatch/internal/models"
)

// RedisTripIndex keeps the origins of open trips in a Redis GEO set so the
// matching engine can prefilter candidates by radius instead of scanning the
// whole pool. The store stays the source of truth; the index is advisory and
// every lookup failure degrades to a full store scan.
type RedisTripIndex struct {
	client *redis.Client
	key    string
}

func NewRedisTripIndex(addr, password, key string) *RedisTripIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisTripIndex{client: c, key: key}
}

func (r *RedisTripIndex) Upsert(ctx context.Context, t models.Trip) error {
	if _, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Longitude: t.Origin.Lon,
		Latitude:  t.Origin.Lat,
		Name:      t.ID,
	}).Result(); err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(t.ID), map[string]interface{}{
		"driver_id": t.DriverID,
		"capacity":  string(t.CapacityTier),
		"departure": t.DepartureTime.Format(time.RFC3339),
	}).Err()
}

func (r *RedisTripIndex) Remove(ctx context.Context, tripID string) error {
	if err := r.client.ZRem(ctx, r.key, tripID).Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, metaKey(tripID)).Err()
}

// Nearby returns the IDs of indexed trips whose origin lies within radiusKm
// of the given point, closest first.
func (r *RedisTripIndex) Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]string, error) {
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius: radiusKm,
		Unit:   "km",
		Count:  limit,
		Sort:   "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res))
	for _, g := range res {
		ids = append(ids, g.Name)
	}
	return ids, nil
}

func (r *RedisTripIndex) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisTripIndex) Close() error { return r.client.Close() }

func metaKey(id string) string { return "trip:meta:" + id }

package geo

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/bike-help/internal/models"
)

// RedisGeo indexes map points and rider presence with Redis GEO commands.
// Point entries are mirrored from the catalog on every reload; rider entries
// are written by the location consumer as fixes arrive.
type RedisGeo struct {
	client    *redis.Client
	pointsKey string
	ridersKey string
}

func NewRedisGeo(client *redis.Client, pointsKey, ridersKey string) *RedisGeo {
	return &RedisGeo{client: client, pointsKey: pointsKey, ridersKey: ridersKey}
}

func (r *RedisGeo) UpsertPoint(ctx context.Context, p models.MapPoint) error {
	return r.client.GeoAdd(ctx, r.pointsKey, &redis.GeoLocation{Longitude: p.Loc.Lon, Latitude: p.Loc.Lat, Name: p.ID}).Err()
}

func (r *RedisGeo) RemovePoint(ctx context.Context, id string) error {
	return r.client.ZRem(ctx, r.pointsKey, id).Err()
}

// NearbyPointIDs returns ids of points within radiusMeters, closest first.
func (r *RedisGeo) NearbyPointIDs(ctx context.Context, loc models.Coord, radiusMeters float64, limit int) ([]string, error) {
	res, err := r.client.GeoRadius(ctx, r.pointsKey, loc.Lon, loc.Lat, &redis.GeoRadiusQuery{
		Radius: radiusMeters, Unit: "m", WithDist: true, Count: limit, Sort: "ASC",
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

func (r *RedisGeo) UpsertRider(ctx context.Context, f models.LocationFix) error {
	if err := r.client.GeoAdd(ctx, r.ridersKey, &redis.GeoLocation{Longitude: f.Loc.Lon, Latitude: f.Loc.Lat, Name: f.UserID}).Err(); err != nil {
		return err
	}
	return r.client.HSet(ctx, riderMetaKey(f.UserID), map[string]interface{}{
		"seen": time.Now().Format(time.RFC3339),
	}).Err()
}

// NearbyRider is a rider presence hit from the geo index.
type NearbyRider struct {
	UserID   string       `json:"user_id"`
	Loc      models.Coord `json:"loc"`
	Distance float64      `json:"distance_m"`
}

func (r *RedisGeo) NearbyRiders(ctx context.Context, loc models.Coord, radiusMeters float64, limit int) ([]NearbyRider, error) {
	res, err := r.client.GeoRadius(ctx, r.ridersKey, loc.Lon, loc.Lat, &redis.GeoRadiusQuery{
		Radius: radiusMeters, Unit: "m", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]NearbyRider, 0, len(res))
	for _, g := range res {
		out = append(out, NearbyRider{
			UserID:   g.Name,
			Loc:      models.Coord{Lat: g.Latitude, Lon: g.Longitude},
			Distance: g.Dist,
		})
	}
	return out, nil
}

func riderMetaKey(id string) string { return "rider:meta:" + id }

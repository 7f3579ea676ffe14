package catalog

import (
	"sort"
	"strings"

	"github.com/example/bike-help/internal/geo"
	"github.com/example/bike-help/internal/models"
)

// Criteria are the active filter predicates for a map/list view. An empty
// string (or nil origin, or non-positive radius) is the "match everything"
// sentinel for its predicate, not a request to match zero points. Active
// predicates combine with AND.
type Criteria struct {
	Category     string
	CreatorID    string
	Search       string
	Origin       *models.Coord
	RadiusMeters float64
}

// Filter returns the subset of points matching c, ordered ascending by
// category with ties kept in input order so same-category markers group
// together. The input slice is never mutated.
func Filter(points []models.MapPoint, c Criteria) []models.MapPoint {
	category := strings.TrimSpace(c.Category)
	search := strings.ToLower(c.Search)

	out := make([]models.MapPoint, 0, len(points))
	for _, p := range points {
		if category != "" && !strings.EqualFold(strings.TrimSpace(p.Category), category) {
			continue
		}
		if c.CreatorID != "" && p.CreatorID != c.CreatorID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		if c.Origin != nil && c.RadiusMeters > 0 && !geo.Within(*c.Origin, p.Loc, c.RadiusMeters) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

package cache

import "fmt"

const (
	KeyCatalogLines    = "catalog:lines"
	KeyCatalogStations = "catalog:stations"
)

// KeyLineShape caches a line's stitched polyline geometry, which only
// changes when the static catalog is reloaded.
func KeyLineShape(lineID string) string {
	return fmt.Sprintf("shape:%s", lineID)
}

// KeyLinePositions caches the latest computed position set for a line,
// refreshed every fusion cycle so horizontally-scaled API replicas can
// serve reads without holding their own fusion.Publisher.
func KeyLinePositions(lineID string) string {
	return fmt.Sprintf("positions:%s", lineID)
}

// Package aoi loads area-of-interest geometries from GeoJSON and exposes the
// spatial queries the pipeline needs: envelope, centroid and pixel-center
// containment. Geometries are normalised into the working CRS (EPSG:25832)
// at load time and never mutated afterwards.
package aoi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/geofield/agriseries/internal/geo"
)

// ErrBadGeometry marks a degenerate or unusable input geometry. The owning
// polygon is skipped; the run continues with the remaining ones.
var ErrBadGeometry = errors.New("bad aoi geometry")

// AreaOfInterest is one field polygon (or buffered point), owning exactly one
// output subtree. Immutable once loaded.
type AreaOfInterest struct {
	Name       string
	Geometry   orb.Geometry // Polygon or MultiPolygon in EPSG:25832
	SourcePath string
}

// Load reads a single GeoJSON file. Feature, FeatureCollection (first
// feature) and bare geometry documents are accepted. Point geometries are
// only usable when pointBuffer > 0, in which case a square box of that edge
// length is built around the point.
func Load(path string, pointBuffer float64) (*AreaOfInterest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aoi %s: %w", path, err)
	}

	g, err := parseGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("parse aoi %s: %w", path, err)
	}

	if geo.LooksGeographic(g) {
		g = geo.GeometryToUTM32(g)
	}

	if pt, ok := g.(orb.Point); ok {
		if pointBuffer <= 0 {
			return nil, fmt.Errorf("%w: %s is a point and no point buffer is configured", ErrBadGeometry, path)
		}
		g = bufferBox(pt, pointBuffer)
	}

	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return nil, fmt.Errorf("%w: %s has geometry type %s", ErrBadGeometry, path, g.GeoJSONType())
	}
	if planar.Area(g) <= 0 {
		return nil, fmt.Errorf("%w: %s has zero area", ErrBadGeometry, path)
	}

	name := strings.TrimSuffix(filepath.Base(path), ".geojson")
	return &AreaOfInterest{Name: name, Geometry: g, SourcePath: path}, nil
}

// LoadDir loads every *.geojson in a directory, sorted by file name so a run
// always processes polygons in the same order. Files with bad geometry are
// reported through the returned error slice but do not fail the load.
func LoadDir(dir string, pointBuffer float64) ([]*AreaOfInterest, []error, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read aoi folder %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".geojson") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []*AreaOfInterest
	var skipped []error
	for _, n := range names {
		a, err := Load(filepath.Join(dir, n), pointBuffer)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		out = append(out, a)
	}
	return out, skipped, nil
}

// LoadPath loads either one GeoJSON file or a whole folder of them.
func LoadPath(path string, pointBuffer float64) ([]*AreaOfInterest, []error, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("stat aoi path: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path, pointBuffer)
	}
	a, err := Load(path, pointBuffer)
	if err != nil {
		return nil, []error{err}, nil
	}
	return []*AreaOfInterest{a}, nil, nil
}

// Envelope returns the bounding box of the geometry.
func (a *AreaOfInterest) Envelope() orb.Bound {
	return a.Geometry.Bound()
}

// Centroid returns the representative point used for point/area weather
// coverages.
func (a *AreaOfInterest) Centroid() orb.Point {
	c, _ := planar.CentroidArea(a.Geometry)
	return c
}

// Contains reports whether the point lies inside the AOI, multipolygon
// aware. Used for pixel-center clipping.
func (a *AreaOfInterest) Contains(p orb.Point) bool {
	switch g := a.Geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	default:
		return false
	}
}

func parseGeometry(raw []byte) (orb.Geometry, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(raw); err == nil && len(fc.Features) > 0 {
		return fc.Features[0].Geometry, nil
	}
	if f, err := geojson.UnmarshalFeature(raw); err == nil && f.Geometry != nil {
		return f.Geometry, nil
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, err
	}
	return g.Geometry(), nil
}

// bufferBox builds the square polygon of the given edge length centred on a
// point, matching the fixed bounding-box buffer of point-mode runs.
func bufferBox(c orb.Point, edge float64) orb.Polygon {
	h := edge / 2
	return orb.Polygon{orb.Ring{
		{c[0] - h, c[1] - h},
		{c[0] + h, c[1] - h},
		{c[0] + h, c[1] + h},
		{c[0] - h, c[1] + h},
		{c[0] - h, c[1] - h},
	}}
}

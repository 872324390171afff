package aoi

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
)

func writeGeoJSON(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

// A small field near Braunschweig, lon/lat.
const fieldFeature = `{
  "type": "Feature",
  "properties": {"crop": "W-Weizen"},
  "geometry": {
    "type": "Polygon",
    "coordinates": [[[10.50, 52.26], [10.51, 52.26], [10.51, 52.27], [10.50, 52.27], [10.50, 52.26]]]
  }
}`

const utmPolygon = `{
  "type": "Polygon",
  "coordinates": [[[600000, 5790000], [600500, 5790000], [600500, 5790500], [600000, 5790500], [600000, 5790000]]]
}`

const pointFeature = `{
  "type": "Feature",
  "properties": {},
  "geometry": {"type": "Point", "coordinates": [600100, 5790100]}
}`

func TestLoadFeatureReprojectsToUTM(t *testing.T) {
	dir := t.TempDir()
	p := writeGeoJSON(t, dir, "field-a.geojson", fieldFeature)

	a, err := Load(p, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a.Name != "field-a" {
		t.Errorf("Name = %q, want field-a", a.Name)
	}

	b := a.Envelope()
	// 10.5E 52.26N lies roughly 100 km east of the central meridian and
	// about 5.79e6 m north; lon/lat values would never reach this range.
	if b.Min[0] < 550000 || b.Max[0] > 650000 {
		t.Errorf("easting envelope %v out of UTM range", b)
	}
	if b.Min[1] < 5.7e6 || b.Max[1] > 5.9e6 {
		t.Errorf("northing envelope %v out of UTM range", b)
	}

	c := a.Centroid()
	if !a.Contains(c) {
		t.Error("centroid not contained in its own polygon")
	}
}

func TestLoadBareUTMGeometry(t *testing.T) {
	dir := t.TempDir()
	p := writeGeoJSON(t, dir, "parcel.geojson", utmPolygon)

	a, err := Load(p, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !a.Contains(orb.Point{600250, 5790250}) {
		t.Error("interior point not contained")
	}
	if a.Contains(orb.Point{599000, 5790250}) {
		t.Error("exterior point contained")
	}
}

func TestPointNeedsBuffer(t *testing.T) {
	dir := t.TempDir()
	p := writeGeoJSON(t, dir, "spot.geojson", pointFeature)

	if _, err := Load(p, 0); !errors.Is(err, ErrBadGeometry) {
		t.Fatalf("err = %v, want ErrBadGeometry", err)
	}

	a, err := Load(p, 2000)
	if err != nil {
		t.Fatalf("Load with buffer: %v", err)
	}
	b := a.Envelope()
	if w := b.Max[0] - b.Min[0]; w != 2000 {
		t.Errorf("buffer box width = %f, want 2000", w)
	}
	if !a.Contains(orb.Point{600100, 5790100}) {
		t.Error("buffered box does not contain its seed point")
	}
}

func TestLoadDirSortedAndSkipsBroken(t *testing.T) {
	dir := t.TempDir()
	writeGeoJSON(t, dir, "b-field.geojson", utmPolygon)
	writeGeoJSON(t, dir, "a-field.geojson", fieldFeature)
	writeGeoJSON(t, dir, "broken.geojson", `{"type":"Polygon","coordinates":[]}`)
	writeGeoJSON(t, dir, "notes.txt", "not geojson")

	areas, skipped, err := LoadDir(dir, 0)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(areas) != 2 {
		t.Fatalf("len(areas) = %d, want 2", len(areas))
	}
	if areas[0].Name != "a-field" || areas[1].Name != "b-field" {
		t.Errorf("order = %s, %s; want a-field, b-field", areas[0].Name, areas[1].Name)
	}
	if len(skipped) != 1 {
		t.Errorf("len(skipped) = %d, want 1", len(skipped))
	}
}

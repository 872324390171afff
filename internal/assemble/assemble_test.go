package assemble

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/geofield/agriseries/internal/aoi"
	"github.com/geofield/agriseries/internal/raster"
)

// squareAOI covers 600020..600080 / 5790020..5790080, i.e. the middle of a
// 10x10 pixel tile at 10 m resolution.
func squareAOI(t *testing.T) *aoi.AreaOfInterest {
	t.Helper()
	body := `{"type":"Polygon","coordinates":[[[600020,5790020],[600080,5790020],[600080,5790080],[600020,5790080],[600020,5790020]]]}`
	p := filepath.Join(t.TempDir(), "square.geojson")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write aoi: %v", err)
	}
	a, err := aoi.Load(p, 0)
	if err != nil {
		t.Fatalf("load aoi: %v", err)
	}
	return a
}

func fullTile(t *testing.T) *raster.Tile {
	t.Helper()
	tile := raster.NewTile([]string{"VH", "VV"}, 10, 10, 600000, 5790100, 10, 25832, 0)
	for i := range tile.Bands[0].Data {
		tile.Bands[0].Data[i] = 5
		tile.Bands[1].Data[i] = 9
	}
	return tile
}

func TestAssembleClipsToPolygon(t *testing.T) {
	tile := fullTile(t)
	area := squareAOI(t)

	clipped, count, err := Assemble(tile, area)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	// Pixel centers at 600025..600075 step 10 give 6 columns inside the
	// square, same for rows: 36 surviving pixels.
	if count != 36 {
		t.Errorf("count = %d, want 36", count)
	}
	if count > clipped.TotalPixels() {
		t.Errorf("count %d > total %d", count, clipped.TotalPixels())
	}
	if got := clipped.ValidCount(); got != count {
		t.Errorf("ValidCount() = %d, want %d", got, count)
	}

	// A corner pixel center (600005, 5790095) is outside the square and
	// must be nodata in every band.
	for b := range clipped.Bands {
		if v := clipped.At(b, 0, 0); v != clipped.NoData {
			t.Errorf("band %d corner = %f, want nodata", b, v)
		}
	}
	// An interior pixel keeps its value and band order.
	if clipped.At(0, 5, 5) != 5 || clipped.At(1, 5, 5) != 9 {
		t.Errorf("interior pixel = %f,%f, want 5,9", clipped.At(0, 5, 5), clipped.At(1, 5, 5))
	}
}

func TestAssembleCountsOnlyValidPixels(t *testing.T) {
	tile := fullTile(t)
	// Knock out one interior pixel in both bands before clipping.
	tile.MaskPixel(5, 5)

	_, count, err := Assemble(tile, squareAOI(t))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if count != 35 {
		t.Errorf("count = %d, want 35", count)
	}
}

func TestAssembleRejectsEmptyTile(t *testing.T) {
	tile := &raster.Tile{}
	_, _, err := Assemble(tile, squareAOI(t))
	if !errors.Is(err, ErrAssembly) {
		t.Fatalf("err = %v, want ErrAssembly", err)
	}
}

func TestAssembleRejectsUnknownCRS(t *testing.T) {
	tile := fullTile(t)
	tile.EPSG = 3857
	_, _, err := Assemble(tile, squareAOI(t))
	if !errors.Is(err, ErrAssembly) {
		t.Fatalf("err = %v, want ErrAssembly", err)
	}
}

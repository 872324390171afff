// Package assemble turns raw coverage slices into polygon-scoped tiles:
// every pixel whose center falls outside the area of interest is masked to
// nodata, and the count of surviving pixels is the retrieval-completeness
// measure recorded in the pixel summary.
package assemble

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/geofield/agriseries/internal/aoi"
	"github.com/geofield/agriseries/internal/geo"
	"github.com/geofield/agriseries/internal/raster"
)

// ErrAssembly marks a geometry or georeferencing failure. Processing for the
// affected polygon stops; other polygons continue.
var ErrAssembly = errors.New("assembly failed")

// Assemble clips a tile to the AOI and returns it with the valid-pixel
// count. Band order and grid alignment are preserved; the tile is tagged
// with the output CRS. The input tile is modified in place.
func Assemble(tile *raster.Tile, area *aoi.AreaOfInterest) (*raster.Tile, int, error) {
	if tile.Width <= 0 || tile.Height <= 0 || len(tile.Bands) == 0 {
		return nil, 0, fmt.Errorf("%w: empty tile", ErrAssembly)
	}
	if tile.CellSize <= 0 {
		return nil, 0, fmt.Errorf("%w: tile has no cell size", ErrAssembly)
	}

	env := area.Envelope()
	if env.Min[0] >= env.Max[0] || env.Min[1] >= env.Max[1] {
		return nil, 0, fmt.Errorf("%w: degenerate polygon %s", ErrAssembly, area.Name)
	}

	// Satellite slices arrive already gridded in the output CRS; anything
	// else is re-tagged onto the working CRS grid. The service grids are
	// axis-aligned in 25832, so re-tagging the origin is sufficient; there
	// is no resampling.
	if tile.EPSG != 0 && tile.EPSG != geo.EPSG25832 {
		if tile.EPSG != geo.EPSG4326 {
			return nil, 0, fmt.Errorf("%w: cannot reproject tile from EPSG:%d", ErrAssembly, tile.EPSG)
		}
		origin := geo.ToUTM32(orb.Point{tile.OriginE, tile.OriginN})
		tile.OriginE, tile.OriginN = origin[0], origin[1]
		tile.EPSG = geo.EPSG25832
	}
	if tile.EPSG == 0 {
		tile.EPSG = geo.EPSG25832
	}

	count := 0
	for row := 0; row < tile.Height; row++ {
		for col := 0; col < tile.Width; col++ {
			e, n := tile.CellCenter(col, row)
			if !area.Contains(orb.Point{e, n}) {
				tile.MaskPixel(col, row)
				continue
			}
			if pixelValid(tile, col, row) {
				count++
			}
		}
	}

	return tile, count, nil
}

func pixelValid(t *raster.Tile, col, row int) bool {
	for b := range t.Bands {
		if t.At(b, col, row) != t.NoData {
			return true
		}
	}
	return false
}

// Package index derives single-band vegetation index rasters from assembled
// tiles. Both derivations are pure: inputs are never modified and every
// output sample is either inside the fixed index range or the nodata
// sentinel. NaN never reaches an output raster.
package index

import (
	"fmt"
	"math"

	"github.com/geofield/agriseries/internal/raster"
)

// NoData is the sentinel of derived index rasters. Raw coverages use 0 for
// empty pixels, but 0 is a legal index value, so derived bands carry their
// own sentinel.
const NoData = -9999

// Optical band positions in the 10-band reflectance schema.
const (
	redBandIndex = 2 // B04
	nirBandIndex = 7 // B8A grid position carrying the near-infrared signal
)

// RVI computes the radar vegetation ratio 4*VH/(VH+VV), rescaled by 1/4
// into the fixed range [0,1]. Pixels with a zero or nodata denominator
// propagate as nodata.
func RVI(t *raster.Tile) (*raster.Tile, error) {
	vh := t.BandIndex("VH")
	vv := t.BandIndex("VV")
	if vh < 0 || vv < 0 {
		return nil, fmt.Errorf("rvi: tile lacks VH/VV bands")
	}

	out := derivedTile(t, "RVI")
	for i := range out.Bands[0].Data {
		a, b := t.Bands[vh].Data[i], t.Bands[vv].Data[i]
		if a == t.NoData || b == t.NoData || math.IsNaN(a) || math.IsNaN(b) {
			continue
		}
		sum := a + b
		if sum == 0 {
			continue
		}
		// Raw ratio spans [0,4] for non-negative backscatter.
		rvi := 4 * a / sum
		out.Bands[0].Data[i] = clamp(rvi/4, 0, 1)
	}
	return out, nil
}

// NDVI computes (NIR-Red)/(NIR+Red) over the 10-band optical schema,
// clipped to [-1,1]. Zero denominators propagate as nodata.
func NDVI(t *raster.Tile) (*raster.Tile, error) {
	if len(t.Bands) <= nirBandIndex {
		return nil, fmt.Errorf("ndvi: tile has %d bands, need at least %d", len(t.Bands), nirBandIndex+1)
	}

	out := derivedTile(t, "NDVI")
	for i := range out.Bands[0].Data {
		nir, red := t.Bands[nirBandIndex].Data[i], t.Bands[redBandIndex].Data[i]
		if nir == t.NoData || red == t.NoData || math.IsNaN(nir) || math.IsNaN(red) {
			continue
		}
		sum := nir + red
		if sum == 0 {
			continue
		}
		out.Bands[0].Data[i] = clamp((nir-red)/sum, -1, 1)
	}
	return out, nil
}

// Mean averages the valid samples of a single-band index raster. The second
// return is false when no pixel carries data.
func Mean(t *raster.Tile) (float64, bool) {
	sum, n := 0.0, 0
	for _, v := range t.Bands[0].Data {
		if v == t.NoData || math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func derivedTile(src *raster.Tile, band string) *raster.Tile {
	return raster.NewTile([]string{band}, src.Width, src.Height, src.OriginE, src.OriginN, src.CellSize, src.EPSG, NoData)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return NoData
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

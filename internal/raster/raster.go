// Package raster holds the in-memory tile model shared by the retrieval,
// clipping and derivation stages, plus a GeoTIFF codec for the coverage
// service's wire format and the on-disk artifacts.
package raster

import "math"

// Band is one named 2-D grid of a tile, stored row-major.
type Band struct {
	Name string
	Data []float64
}

// Tile is a georeferenced multi-band grid. Origin is the outer corner of the
// upper-left pixel; rows run north to south. CellSize is the source layer's
// nominal resolution and is never resampled (10 m satellite, 1 km weather).
type Tile struct {
	Bands    []Band
	Width    int
	Height   int
	OriginE  float64
	OriginN  float64
	CellSize float64
	EPSG     int
	NoData   float64
}

// NewTile allocates a tile with the given band names, every sample set to
// the nodata sentinel.
func NewTile(names []string, width, height int, originE, originN, cellSize float64, epsg int, nodata float64) *Tile {
	t := &Tile{
		Width:    width,
		Height:   height,
		OriginE:  originE,
		OriginN:  originN,
		CellSize: cellSize,
		EPSG:     epsg,
		NoData:   nodata,
	}
	for _, n := range names {
		data := make([]float64, width*height)
		if nodata != 0 {
			for i := range data {
				data[i] = nodata
			}
		}
		t.Bands = append(t.Bands, Band{Name: n, Data: data})
	}
	return t
}

// At returns the sample of band b at (col, row).
func (t *Tile) At(b, col, row int) float64 {
	return t.Bands[b].Data[row*t.Width+col]
}

// Set writes the sample of band b at (col, row).
func (t *Tile) Set(b, col, row int, v float64) {
	t.Bands[b].Data[row*t.Width+col] = v
}

// CellCenter returns the easting/northing of the pixel center at (col, row).
func (t *Tile) CellCenter(col, row int) (float64, float64) {
	e := t.OriginE + (float64(col)+0.5)*t.CellSize
	n := t.OriginN - (float64(row)+0.5)*t.CellSize
	return e, n
}

// TotalPixels is the full grid size regardless of masking.
func (t *Tile) TotalPixels() int {
	return t.Width * t.Height
}

// ValidCount counts pixels carrying data: at least one band sample differs
// from the nodata sentinel. NaN samples never count as valid.
func (t *Tile) ValidCount() int {
	count := 0
	for i := 0; i < t.Width*t.Height; i++ {
		for _, b := range t.Bands {
			v := b.Data[i]
			if !math.IsNaN(v) && v != t.NoData {
				count++
				break
			}
		}
	}
	return count
}

// MaskPixel writes nodata into every band at (col, row).
func (t *Tile) MaskPixel(col, row int) {
	i := row*t.Width + col
	for b := range t.Bands {
		t.Bands[b].Data[i] = t.NoData
	}
}

// BandIndex returns the position of the named band, or -1.
func (t *Tile) BandIndex(name string) int {
	for i, b := range t.Bands {
		if b.Name == name {
			return i
		}
	}
	return -1
}

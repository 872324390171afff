package output

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/geofield/agriseries/internal/aoi"
	"github.com/geofield/agriseries/internal/daterange"
	"github.com/geofield/agriseries/internal/metrics"
	"github.com/geofield/agriseries/internal/raster"
)

const quicklookMinEdge = 256

// WriteQuicklook renders a PNG preview of a derived index tile next to its
// GeoTIFF. Valid pixels are stretched over the tile's value range into a
// green ramp, masked pixels stay transparent, and a caption with date, index
// and polygon name is drawn along the top.
func (w *Writer) WriteQuicklook(area *aoi.AreaOfInterest, kind string, date time.Time, tile *raster.Tile) (string, error) {
	name := fmt.Sprintf("%s_%s_%s.png", date.Format(stampFormat), strings.ToUpper(kind), area.Name)
	path := filepath.Join(w.root, kind+"_ras", area.Name, name)

	img, err := renderQuicklook(tile, fmt.Sprintf("%s %s %s", date.Format(daterange.ISODate), strings.ToUpper(kind), area.Name))
	if err != nil {
		return "", fmt.Errorf("quicklook %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("quicklook %s: %w", name, err)
	}
	if err := w.writeAtomic(path, buf.Bytes()); err != nil {
		return "", err
	}
	metrics.ArtifactsWritten.WithLabelValues("quicklook").Inc()
	return path, nil
}

func renderQuicklook(tile *raster.Tile, caption string) (image.Image, error) {
	if len(tile.Bands) == 0 || tile.Width <= 0 || tile.Height <= 0 {
		return nil, fmt.Errorf("empty tile")
	}
	band := tile.Bands[0]

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range band.Data {
		if v == tile.NoData || math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	// Upscale small tiles so the caption stays legible.
	scale := 1
	if tile.Width < quicklookMinEdge {
		scale = (quicklookMinEdge + tile.Width - 1) / tile.Width
	}

	const captionBand = 14
	img := image.NewNRGBA(image.Rect(0, 0, tile.Width*scale, tile.Height*scale+captionBand))
	for row := 0; row < tile.Height; row++ {
		for col := 0; col < tile.Width; col++ {
			c := color.NRGBA{}
			v := tile.At(0, col, row)
			if v != tile.NoData && !math.IsNaN(v) {
				t := 0.5
				if hi > lo {
					t = (v - lo) / (hi - lo)
				}
				c = rampColor(t)
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetNRGBA(col*scale+dx, captionBand+row*scale+dy, c)
				}
			}
		}
	}

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(2, 11),
	}
	d.DrawString(caption)
	return img, nil
}

// rampColor maps a stretched sample in [0,1] onto a dark-to-green ramp.
func rampColor(t float64) color.NRGBA {
	t = math.Min(math.Max(t, 0), 1)
	return color.NRGBA{
		R: uint8(40 + 30*t),
		G: uint8(40 + 180*t),
		B: uint8(40 + 30*(1-t)),
		A: 0xff,
	}
}

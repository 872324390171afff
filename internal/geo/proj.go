// Package geo converts between geographic coordinates (EPSG:4326) and the
// fixed working CRS of the coverage service, ETRS89 / UTM zone 32N
// (EPSG:25832). GeoJSON input is lon/lat by convention, while every coverage
// grid and output raster lives in 25832, so AOI geometries pass through this
// transform exactly once at load time.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// GRS80 ellipsoid and UTM zone 32N projection constants.
const (
	semiMajor  = 6378137.0
	flattening = 1.0 / 298.257222101

	scale        = 0.9996
	falseEasting = 500000.0
	centralLon   = 9.0 // zone 32N central meridian
)

// EPSG codes of the two systems this package translates between.
const (
	EPSG4326  = 4326
	EPSG25832 = 25832
)

var (
	n      = flattening / (2 - flattening)
	radius = semiMajor / (1 + n) * (1 + n*n/4 + n*n*n*n/64)

	// Krueger series coefficients, third order. Accurate to well under a
	// millimetre inside the zone, which is far below the 10 m grid.
	alpha = [3]float64{
		n/2 - 2*n*n/3 + 5*n*n*n/16,
		13*n*n/48 - 3*n*n*n/5,
		61 * n * n * n / 240,
	}
	beta = [3]float64{
		n/2 - 2*n*n/3 + 37*n*n*n/96,
		n*n/48 + n*n*n/15,
		17 * n * n * n / 480,
	}
	delta = [3]float64{
		2*n - 2*n*n/3 - 2*n*n*n,
		7*n*n/3 - 8*n*n*n/5,
		56 * n * n * n / 15,
	}
)

// ToUTM32 projects a lon/lat point into EPSG:25832 easting/northing metres.
func ToUTM32(p orb.Point) orb.Point {
	lon := p[0] * math.Pi / 180
	lat := p[1] * math.Pi / 180
	lon0 := centralLon * math.Pi / 180

	s := math.Sin(lat)
	c := 2 * math.Sqrt(n) / (1 + n)
	t := math.Sinh(math.Atanh(s) - c*math.Atanh(c*s))

	dl := lon - lon0
	xiP := math.Atan2(t, math.Cos(dl))
	etaP := math.Atanh(math.Sin(dl) / math.Sqrt(1+t*t))

	xi, eta := xiP, etaP
	for j := 0; j < 3; j++ {
		k := float64(2 * (j + 1))
		xi += alpha[j] * math.Sin(k*xiP) * math.Cosh(k*etaP)
		eta += alpha[j] * math.Cos(k*xiP) * math.Sinh(k*etaP)
	}

	return orb.Point{
		falseEasting + scale*radius*eta,
		scale * radius * xi,
	}
}

// FromUTM32 is the inverse of ToUTM32, returning lon/lat degrees.
func FromUTM32(p orb.Point) orb.Point {
	xi := p[1] / (scale * radius)
	eta := (p[0] - falseEasting) / (scale * radius)

	xiP, etaP := xi, eta
	for j := 0; j < 3; j++ {
		k := float64(2 * (j + 1))
		xiP -= beta[j] * math.Sin(k*xi) * math.Cosh(k*eta)
		etaP -= beta[j] * math.Cos(k*xi) * math.Sinh(k*eta)
	}

	chi := math.Asin(math.Sin(xiP) / math.Cosh(etaP))
	lat := chi
	for j := 0; j < 3; j++ {
		k := float64(2 * (j + 1))
		lat += delta[j] * math.Sin(k*chi)
	}

	lon0 := centralLon * math.Pi / 180
	lon := lon0 + math.Atan2(math.Sinh(etaP), math.Cos(xiP))

	return orb.Point{lon * 180 / math.Pi, lat * 180 / math.Pi}
}

// GeometryToUTM32 projects a whole geometry from lon/lat into EPSG:25832.
func GeometryToUTM32(g orb.Geometry) orb.Geometry {
	return project.Geometry(orb.Clone(g), ToUTM32)
}

// LooksGeographic reports whether a geometry's coordinates plausibly are
// lon/lat degrees rather than projected metres. UTM eastings/northings are
// always far outside the degree domain, so the bound is an unambiguous test.
func LooksGeographic(g orb.Geometry) bool {
	b := g.Bound()
	return b.Min[0] >= -180 && b.Max[0] <= 180 && b.Min[1] >= -90 && b.Max[1] <= 90
}

// Package weather retrieves the daily precipitation and temperature series
// for a polygon's representative point and derives growing-degree-days.
//
// GDD accumulation: the emitted GDD column is a cumulative running sum over
// the date range (rounded to two decimals), not a per-day value. Days whose
// temperature inputs are missing contribute zero to the accumulation and
// render as explicit gaps; gaps are never interpolated.
package weather

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/geofield/agriseries/internal/aoi"
	"github.com/geofield/agriseries/internal/coverage"
	"github.com/geofield/agriseries/internal/daterange"
)

// Record is one day of the weather table. Temperatures are whole degrees
// Celsius (the coverages store tenths and are scaled on ingest),
// precipitation whole millimetres. Invalid fields are gaps.
type Record struct {
	Date     time.Time
	Precip   sql.NullInt64
	TempMean sql.NullInt64
	TempMin  sql.NullInt64
	TempMax  sql.NullInt64
	GDD      sql.NullFloat64
}

// GDD is the per-day growing-degree-day contribution for a base
// temperature: max(0, (Tmax+Tmin)/2 - base).
func GDD(tmin, tmax, base float64) float64 {
	g := (tmax+tmin)/2 - base
	if g < 0 {
		return 0
	}
	return g
}

// SeriesFetcher is the slice of the coverage client the aggregator needs.
type SeriesFetcher interface {
	FetchSeries(ctx context.Context, layer coverage.Layer, pt orb.Point, rng daterange.Range) ([]float64, error)
}

// Aggregator builds per-polygon weather tables.
type Aggregator struct {
	client SeriesFetcher
}

func New(client SeriesFetcher) *Aggregator {
	return &Aggregator{client: client}
}

// Series retrieves the four weather coverages at the AOI's representative
// point and assembles one record per day in the range. A failed layer
// retrieval leaves that variable's column as gaps; only authentication
// failures and cancellation propagate as errors.
func (a *Aggregator) Series(ctx context.Context, area *aoi.AreaOfInterest, rng daterange.Range, gddBase float64) ([]Record, error) {
	pt := area.Centroid()
	dates := rng.Dates()

	columns := make(map[string][]float64, 4)
	for _, layer := range coverage.WeatherLayers() {
		vals, err := a.client.FetchSeries(ctx, layer, pt, rng)
		if err != nil {
			if errors.Is(err, coverage.ErrAuthentication) || ctx.Err() != nil {
				return nil, err
			}
			log.Printf("weather: %s for %s: %v, recording gaps", layer.ID, area.Name, err)
			continue
		}
		columns[layer.Short] = alignSeries(layer, vals, len(dates))
	}

	records := make([]Record, len(dates))
	total := 0.0
	for i, d := range dates {
		rec := Record{Date: d}
		if v, ok := cell(columns["precip"], i); ok {
			rec.Precip = sql.NullInt64{Int64: int64(math.Round(v)), Valid: true}
		}
		if v, ok := cell(columns["temp_mean"], i); ok {
			rec.TempMean = sql.NullInt64{Int64: int64(math.Round(v / coverage.WeatherTempMean.Scale)), Valid: true}
		}
		if v, ok := cell(columns["temp_min"], i); ok {
			rec.TempMin = sql.NullInt64{Int64: int64(math.Round(v / coverage.WeatherTempMin.Scale)), Valid: true}
		}
		if v, ok := cell(columns["temp_max"], i); ok {
			rec.TempMax = sql.NullInt64{Int64: int64(math.Round(v / coverage.WeatherTempMax.Scale)), Valid: true}
		}

		if rec.TempMin.Valid && rec.TempMax.Valid {
			total += GDD(float64(rec.TempMin.Int64), float64(rec.TempMax.Int64), gddBase)
			rec.GDD = sql.NullFloat64{Float64: math.Round(total*100) / 100, Valid: true}
		}
		records[i] = rec
	}

	return records, nil
}

// alignSeries maps raw series values onto day indices. The mean-temperature
// coverage anchors its daily slices at noon rather than midnight, so its
// series carries no sample for the first day of the range: a full-length
// response drops its leading sample, a short response shifts by one.
func alignSeries(layer coverage.Layer, vals []float64, days int) []float64 {
	out := make([]float64, days)
	for i := range out {
		out[i] = math.NaN()
	}

	offset := 0
	if layer.DayStart != "00:00:00.000Z" {
		offset = 1
		if len(vals) == days {
			vals = vals[1:]
		}
	}
	for i, v := range vals {
		if i+offset >= days {
			break
		}
		out[i+offset] = v
	}
	return out
}

func cell(col []float64, i int) (float64, bool) {
	if col == nil || i >= len(col) || math.IsNaN(col[i]) {
		return 0, false
	}
	return col[i], true
}

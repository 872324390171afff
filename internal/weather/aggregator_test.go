package weather

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/geofield/agriseries/internal/aoi"
	"github.com/geofield/agriseries/internal/coverage"
	"github.com/geofield/agriseries/internal/daterange"
)

type fakeFetcher struct {
	series map[string][]float64
	errs   map[string]error
	calls  []string
}

func (f *fakeFetcher) FetchSeries(_ context.Context, layer coverage.Layer, _ orb.Point, _ daterange.Range) ([]float64, error) {
	f.calls = append(f.calls, layer.ID)
	if err, ok := f.errs[layer.Short]; ok {
		return nil, err
	}
	return f.series[layer.Short], nil
}

func testArea(t *testing.T) *aoi.AreaOfInterest {
	t.Helper()
	ring := orb.Ring{{500000, 5770000}, {500100, 5770000}, {500100, 5770100}, {500000, 5770100}, {500000, 5770000}}
	return &aoi.AreaOfInterest{Name: "field_a", Geometry: orb.Polygon{ring}}
}

func testRange(t *testing.T, start, end string) daterange.Range {
	t.Helper()
	rng, err := daterange.Parse(start, end)
	if err != nil {
		t.Fatal(err)
	}
	return rng
}

func TestGDD(t *testing.T) {
	if got := GDD(10, 20, 5); got != 10 {
		t.Fatalf("GDD(10,20,5) = %v, want 10", got)
	}
	if got := GDD(-5, 3, 5); got != 0 {
		t.Fatalf("GDD below base = %v, want 0", got)
	}
}

func TestSeriesScalingAndAccumulation(t *testing.T) {
	rng := testRange(t, "2024-06-01", "2024-06-03")
	f := &fakeFetcher{series: map[string][]float64{
		"precip": {2, 0, 7},
		// Noon-anchored coverage: full-length response, leading sample dropped.
		"temp_mean": {999, 150, 160},
		"temp_min":  {100, 100, 120},
		"temp_max":  {200, 200, 240},
	}}

	recs, err := New(f).Series(context.Background(), testArea(t), rng, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if len(f.calls) != 4 {
		t.Fatalf("got %d fetches, want 4", len(f.calls))
	}

	if recs[0].TempMean.Valid {
		t.Error("first-day mean temperature should be a gap")
	}
	if !recs[1].TempMean.Valid || recs[1].TempMean.Int64 != 15 {
		t.Errorf("day 2 mean = %+v, want 15", recs[1].TempMean)
	}
	if !recs[2].TempMean.Valid || recs[2].TempMean.Int64 != 16 {
		t.Errorf("day 3 mean = %+v, want 16", recs[2].TempMean)
	}
	if recs[0].Precip.Int64 != 2 || recs[2].Precip.Int64 != 7 {
		t.Errorf("precip column mismatch: %+v", recs)
	}
	if recs[0].TempMin.Int64 != 10 || recs[2].TempMax.Int64 != 24 {
		t.Errorf("temperature scaling mismatch: %+v", recs)
	}

	// Per-day GDD with base 5 is 10, 10, 13; the column is cumulative.
	want := []float64{10, 20, 33}
	for i, w := range want {
		if !recs[i].GDD.Valid || recs[i].GDD.Float64 != w {
			t.Errorf("GDD[%d] = %+v, want %v", i, recs[i].GDD, w)
		}
	}
}

func TestSeriesShiftedMeanResponse(t *testing.T) {
	rng := testRange(t, "2024-06-01", "2024-06-03")
	f := &fakeFetcher{series: map[string][]float64{
		"temp_mean": {150, 160}, // one short, shifted by a day
	}}

	recs, err := New(f).Series(context.Background(), testArea(t), rng, 5)
	if err != nil {
		t.Fatal(err)
	}
	if recs[0].TempMean.Valid {
		t.Error("first-day mean temperature should be a gap")
	}
	if recs[1].TempMean.Int64 != 15 || recs[2].TempMean.Int64 != 16 {
		t.Errorf("shifted mean column mismatch: %+v", recs)
	}
}

func TestSeriesGapsSkipAccumulation(t *testing.T) {
	rng := testRange(t, "2024-06-01", "2024-06-03")
	f := &fakeFetcher{series: map[string][]float64{
		"temp_min": {100, math.NaN(), 100},
		"temp_max": {200, 200, 200},
	}}

	recs, err := New(f).Series(context.Background(), testArea(t), rng, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !recs[0].GDD.Valid || recs[0].GDD.Float64 != 10 {
		t.Errorf("GDD[0] = %+v, want 10", recs[0].GDD)
	}
	if recs[1].GDD.Valid {
		t.Error("GDD on a gap day should be invalid")
	}
	// The missing day contributes nothing; accumulation resumes.
	if !recs[2].GDD.Valid || recs[2].GDD.Float64 != 20 {
		t.Errorf("GDD[2] = %+v, want 20", recs[2].GDD)
	}
	if recs[1].Precip.Valid {
		t.Error("precip column should be all gaps when the layer failed")
	}
}

func TestSeriesLayerFailureIsNotFatal(t *testing.T) {
	rng := testRange(t, "2024-06-01", "2024-06-02")
	f := &fakeFetcher{
		series: map[string][]float64{"precip": {1, 2}},
		errs:   map[string]error{"temp_min": errors.New("boom")},
	}

	recs, err := New(f).Series(context.Background(), testArea(t), rng, 5)
	if err != nil {
		t.Fatal(err)
	}
	if recs[0].TempMin.Valid || recs[1].TempMin.Valid {
		t.Error("failed layer should yield gaps")
	}
	if !recs[0].Precip.Valid {
		t.Error("healthy layers should still populate")
	}
}

func TestSeriesAuthFailureIsFatal(t *testing.T) {
	rng := testRange(t, "2024-06-01", "2024-06-02")
	f := &fakeFetcher{errs: map[string]error{"precip": coverage.ErrAuthentication}}

	_, err := New(f).Series(context.Background(), testArea(t), rng, 5)
	if !errors.Is(err, coverage.ErrAuthentication) {
		t.Fatalf("got %v, want ErrAuthentication", err)
	}
}

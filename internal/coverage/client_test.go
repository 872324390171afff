package coverage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/geofield/agriseries/internal/daterange"
	"github.com/geofield/agriseries/internal/raster"
)

var testExtent = orb.Bound{Min: orb.Point{600000, 5790000}, Max: orb.Point{600100, 5790100}}

func testDate(t *testing.T) time.Time {
	t.Helper()
	d, err := time.Parse(daterange.ISODate, "2024-06-01")
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	return d
}

func radarResponse(t *testing.T, fill float64) []byte {
	t.Helper()
	tile := raster.NewTile([]string{"b1", "b2"}, 10, 10, 600000, 5790100, 10, 25832, 0)
	for i := range tile.Bands[0].Data {
		tile.Bands[0].Data[i] = fill
		tile.Bands[1].Data[i] = fill * 2
	}
	data, err := raster.EncodeGeoTIFF(tile, raster.Int32)
	if err != nil {
		t.Fatalf("encode response tile: %v", err)
	}
	return data
}

func TestFetchSuccess(t *testing.T) {
	var sawAuth atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		sawAuth.Store(ok && user == "alice" && pass == "secret")
		if r.URL.Query().Get("coverageId") != RadarAscending.ID {
			http.Error(w, "unknown coverage", http.StatusNotFound)
			return
		}
		w.Write(radarResponse(t, 7))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{User: "alice", Password: "secret"})
	res := c.Fetch(context.Background(), RadarAscending, testExtent, testDate(t))

	if res.Status != StatusOK {
		t.Fatalf("Status = %v, want ok (err %v)", res.Status, res.Err)
	}
	if !sawAuth.Load() {
		t.Error("request did not carry basic auth credentials")
	}
	if got := len(res.Tile.Bands); got != 2 {
		t.Fatalf("bands = %d, want 2", got)
	}
	if res.Tile.Bands[0].Name != "VH" || res.Tile.Bands[1].Name != "VV" {
		t.Errorf("band names = %s, %s; want VH, VV", res.Tile.Bands[0].Name, res.Tile.Bands[1].Name)
	}
}

func TestFetchBandCountMismatchIsMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tile := raster.NewTile([]string{"b1"}, 10, 10, 600000, 5790100, 10, 25832, 0)
		for i := range tile.Bands[0].Data {
			tile.Bands[0].Data[i] = 7
		}
		data, err := raster.EncodeGeoTIFF(tile, raster.Int32)
		if err != nil {
			t.Errorf("encode response tile: %v", err)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{})
	res := c.Fetch(context.Background(), RadarAscending, testExtent, testDate(t))

	if res.Status != StatusMissing {
		t.Fatalf("Status = %v, want missing", res.Status)
	}
	if res.Err != nil {
		t.Errorf("Err = %v, want nil", res.Err)
	}
}

func TestFetchAuthFailureIsFatalWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{User: "alice", Password: "wrong"})
	res := c.Fetch(context.Background(), RadarAscending, testExtent, testDate(t))

	if res.Status != StatusFatal {
		t.Fatalf("Status = %v, want fatal", res.Status)
	}
	if !errors.Is(res.Err, ErrAuthentication) {
		t.Errorf("Err = %v, want ErrAuthentication", res.Err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server saw %d calls, want 1 (no retry on auth failure)", n)
	}
}

func TestFetchRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "temporarily down", http.StatusInternalServerError)
			return
		}
		w.Write(radarResponse(t, 3))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{})
	res := c.Fetch(context.Background(), RadarAscending, testExtent, testDate(t))

	if res.Status != StatusOK {
		t.Fatalf("Status = %v, want ok after retry", res.Status)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("server saw %d calls, want 2", n)
	}
}

func TestFetchNotFoundIsMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no slice for that date", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{})
	res := c.Fetch(context.Background(), RadarAscending, testExtent, testDate(t))
	if res.Status != StatusMissing {
		t.Fatalf("Status = %v, want missing", res.Status)
	}
	if res.Err != nil {
		t.Errorf("Err = %v, want nil for missing", res.Err)
	}
}

func TestFetchEmptyTileIsMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(radarResponse(t, 0)) // every sample at the nodata sentinel
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{})
	res := c.Fetch(context.Background(), RadarAscending, testExtent, testDate(t))
	if res.Status != StatusMissing {
		t.Fatalf("Status = %v, want missing for all-nodata slice", res.Status)
	}
}

func TestFetchSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "text/csv" {
			http.Error(w, "bad format", http.StatusBadRequest)
			return
		}
		w.Write([]byte("{12,0,7}"))
	}))
	defer srv.Close()

	rng, err := daterange.Parse("2024-06-01", "2024-06-03")
	if err != nil {
		t.Fatalf("range: %v", err)
	}

	c := NewClient(srv.URL, Credentials{})
	vals, err := c.FetchSeries(context.Background(), WeatherPrecipitation, orb.Point{600000, 5790000}, rng)
	if err != nil {
		t.Fatalf("FetchSeries: %v", err)
	}
	want := []float64{12, 0, 7}
	if len(vals) != len(want) {
		t.Fatalf("len(vals) = %d, want %d", len(vals), len(want))
	}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("vals[%d] = %f, want %f", i, vals[i], want[i])
		}
	}
}

func TestParseSeriesFormats(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"{1,2,3}", 3},
		{"1 2 3 4", 4},
		{`["10.5","-2"]`, 2},
		{"", 0},
	}
	for _, tt := range tests {
		if got := len(parseSeries(tt.in)); got != tt.want {
			t.Errorf("parseSeries(%q) len = %d, want %d", tt.in, got, tt.want)
		}
	}
}

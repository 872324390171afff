// Package output lays down the artifact tree for a run. Rasters, summary
// tables and weather tables all land under a single root:
//
//	<root>/raw/<aoi>/20240601_S1_asc_<aoi>.tif
//	<root>/ndvi_ras/<aoi>/20240601_NDVI_<aoi>.tif
//	<root>/rvi_ras/<aoi>/20240601_RVI_<aoi>.tif
//	<root>/s1_series_<aoi>_<start>_<end>.csv
//	<root>/<start>_<end>_DWD_GDD_<base>_<aoi>.csv
//
// Every file is written to a temporary sibling and renamed into place, so a
// crash never leaves a truncated artifact and re-runs replace files whole.
package output

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/geofield/agriseries/internal/aoi"
	"github.com/geofield/agriseries/internal/coverage"
	"github.com/geofield/agriseries/internal/daterange"
	"github.com/geofield/agriseries/internal/metrics"
	"github.com/geofield/agriseries/internal/raster"
	"github.com/geofield/agriseries/internal/weather"
)

const stampFormat = "20060102"

// SummaryRow is one (date, layer) acquisition in the pixel summary. Missing
// acquisitions are kept as rows so the table covers the whole range.
type SummaryRow struct {
	Date    time.Time
	Layer   string
	Valid   int
	Total   int
	Missing bool
}

// Writer owns the artifact tree under a root directory.
type Writer struct {
	root string
}

func NewWriter(root string) (*Writer, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("output root: %w", err)
	}
	return &Writer{root: root}, nil
}

func (w *Writer) Root() string { return w.root }

// WriteRaw stores an assembled source tile as int32 GeoTIFF under
// raw/<aoi>/ and returns the final path.
func (w *Writer) WriteRaw(area *aoi.AreaOfInterest, layer coverage.Layer, date time.Time, tile *raster.Tile) (string, error) {
	name := fmt.Sprintf("%s_%s_%s.tif", date.Format(stampFormat), layer.Short, area.Name)
	path := filepath.Join(w.root, "raw", area.Name, name)

	data, err := raster.EncodeGeoTIFF(tile, raster.Int32)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	if err := w.writeAtomic(path, data); err != nil {
		return "", err
	}
	metrics.ArtifactsWritten.WithLabelValues("raw").Inc()
	return path, nil
}

// IndexPath is the canonical location of a derived index raster, whether or
// not it exists yet. Fill-table mode resolves previously written rasters
// through it.
func (w *Writer) IndexPath(area *aoi.AreaOfInterest, kind string, date time.Time) string {
	name := fmt.Sprintf("%s_%s_%s.tif", date.Format(stampFormat), strings.ToUpper(kind), area.Name)
	return filepath.Join(w.root, kind+"_ras", area.Name, name)
}

// WriteIndex stores a derived index tile as float64 GeoTIFF under
// <kind>_ras/<aoi>/. Kind is "ndvi" or "rvi".
func (w *Writer) WriteIndex(area *aoi.AreaOfInterest, kind string, date time.Time, tile *raster.Tile) (string, error) {
	path := w.IndexPath(area, kind, date)

	data, err := raster.EncodeGeoTIFF(tile, raster.Float64)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := w.writeAtomic(path, data); err != nil {
		return "", err
	}
	metrics.ArtifactsWritten.WithLabelValues(kind).Inc()
	return path, nil
}

// WriteSummary stores the per-date pixel summary for one AOI. Rows are
// ordered by date, then layer tag. The prefix tags the sensor family in the
// file name ("s1" or "s2").
func (w *Writer) WriteSummary(area *aoi.AreaOfInterest, rng daterange.Range, prefix string, rows []SummaryRow) (string, error) {
	sorted := make([]SummaryRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].Layer < sorted[j].Layer
	})

	records := [][]string{{"Polygon Name", "Date", "Valid Pixel", "Valid Percent", "All Pixel", "Status"}}
	for _, r := range sorted {
		records = append(records, summaryRecord(area.Name, r))
	}

	name := fmt.Sprintf("%s_series_%s_%s.csv", prefix, area.Name, rng)
	path := filepath.Join(w.root, name)
	if err := w.writeCSV(path, records); err != nil {
		return "", err
	}
	metrics.ArtifactsWritten.WithLabelValues("summary").Inc()
	return path, nil
}

func summaryRecord(name string, r SummaryRow) []string {
	if r.Missing {
		return []string{name, r.Date.Format(daterange.ISODate), "0", "0.0", "0", "missing"}
	}
	pct := 0.0
	if r.Total > 0 {
		pct = float64(r.Valid) / float64(r.Total) * 100
	}
	return []string{
		name,
		r.Date.Format(daterange.ISODate),
		strconv.Itoa(r.Valid),
		strconv.FormatFloat(pct, 'f', 1, 64),
		strconv.Itoa(r.Total),
		"ok",
	}
}

// WriteWeather stores the weather table for one AOI. The table is
// transposed: a header row of dates, then one row per variable with the
// cumulative GDD last. Gap cells stay empty.
func (w *Writer) WriteWeather(area *aoi.AreaOfInterest, rng daterange.Range, gddBase float64, recs []weather.Record) (string, error) {
	header := []string{"date"}
	precip := []string{"precip"}
	tmean := []string{"temp_mean"}
	tmin := []string{"temp_min"}
	tmax := []string{"temp_max"}
	gdd := []string{"gdd"}
	for _, r := range recs {
		header = append(header, r.Date.Format(daterange.ISODate))
		precip = append(precip, nullInt(r.Precip))
		tmean = append(tmean, nullInt(r.TempMean))
		tmin = append(tmin, nullInt(r.TempMin))
		tmax = append(tmax, nullInt(r.TempMax))
		gdd = append(gdd, nullFloat(r.GDD))
	}

	name := fmt.Sprintf("%s_DWD_GDD_%s_%s.csv", rng, trimFloat(gddBase), area.Name)
	path := filepath.Join(w.root, name)
	if err := w.writeCSV(path, [][]string{header, precip, tmean, tmin, tmax, gdd}); err != nil {
		return "", err
	}
	metrics.ArtifactsWritten.WithLabelValues("weather").Inc()
	return path, nil
}

func nullInt(v sql.NullInt64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatInt(v.Int64, 10)
}

func nullFloat(v sql.NullFloat64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', 2, 64)
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (w *Writer) writeCSV(path string, records [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	if err := cw.WriteAll(records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (w *Writer) writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

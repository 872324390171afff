// Package runner drives a whole extraction: it fans (AOI, date, layer)
// scenes out over a bounded worker pool, funnels per-scene results into
// per-AOI summaries, and dispatches the mode-specific artifact writes.
package runner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/geofield/agriseries/internal/aoi"
	"github.com/geofield/agriseries/internal/assemble"
	"github.com/geofield/agriseries/internal/coverage"
	"github.com/geofield/agriseries/internal/daterange"
	"github.com/geofield/agriseries/internal/index"
	"github.com/geofield/agriseries/internal/output"
	"github.com/geofield/agriseries/internal/raster"
	"github.com/geofield/agriseries/internal/sink"
	"github.com/geofield/agriseries/internal/weather"
)

// Fetcher is the coverage client surface the runner depends on.
type Fetcher interface {
	Fetch(ctx context.Context, layer coverage.Layer, extent orb.Bound, date time.Time) coverage.Result
	FetchSeries(ctx context.Context, layer coverage.Layer, pt orb.Point, rng daterange.Range) ([]float64, error)
}

// Recorder is the database sink surface used in fill-table mode.
type Recorder interface {
	InsertSeries(ctx context.Context, recs []sink.Record) (int, error)
}

// Config fixes a run's behavior up front. It is not modified after New.
type Config struct {
	Mode     string
	Orbit    string
	Range    daterange.Range
	GDDBase  float64
	CropType string
	Workers  int
}

type Runner struct {
	cfg     Config
	client  Fetcher
	writer  *output.Writer
	weather *weather.Aggregator
	sink    Recorder
}

// New wires a runner. The sink may be nil for any mode but fill-table.
func New(cfg Config, client Fetcher, writer *output.Writer, recorder Recorder) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Runner{
		cfg:     cfg,
		client:  client,
		writer:  writer,
		weather: weather.New(client),
		sink:    recorder,
	}
}

// Run executes the configured mode over all AOIs.
func (r *Runner) Run(ctx context.Context, areas []*aoi.AreaOfInterest) error {
	switch r.cfg.Mode {
	case "radar":
		return r.runScenes(ctx, areas, coverage.RadarLayers(r.cfg.Orbit), "s1")
	case "optical":
		return r.runScenes(ctx, areas, []coverage.Layer{coverage.OpticalReflectance}, "s2")
	case "both":
		if err := r.runScenes(ctx, areas, coverage.RadarLayers(r.cfg.Orbit), "s1"); err != nil {
			return err
		}
		return r.runScenes(ctx, areas, []coverage.Layer{coverage.OpticalReflectance}, "s2")
	case "weather":
		return r.runWeather(ctx, areas)
	case "all":
		if err := r.runScenes(ctx, areas, coverage.RadarLayers(r.cfg.Orbit), "s1"); err != nil {
			return err
		}
		if err := r.runScenes(ctx, areas, []coverage.Layer{coverage.OpticalReflectance}, "s2"); err != nil {
			return err
		}
		return r.runWeather(ctx, areas)
	case "fill-table":
		return r.runFillTable(ctx, areas)
	default:
		return fmt.Errorf("runner: unknown mode %q", r.cfg.Mode)
	}
}

type sceneTask struct {
	area  *aoi.AreaOfInterest
	layer coverage.Layer
	date  time.Time
}

// runScenes fetches every (AOI, date, layer) scene through the worker pool,
// then writes one pixel summary per AOI. The summary covers the whole range:
// missing scenes become rows too. A fatal scene cancels the pool and no
// summaries are written.
func (r *Runner) runScenes(ctx context.Context, areas []*aoi.AreaOfInterest, layers []coverage.Layer, prefix string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make(chan sceneTask)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		rows  = make(map[string][]output.SummaryRow, len(areas))
		fatal error
	)

	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				if ctx.Err() != nil {
					continue
				}
				row, err := r.processScene(ctx, t)
				mu.Lock()
				if err != nil {
					if fatal == nil {
						fatal = err
					}
					mu.Unlock()
					cancel()
					continue
				}
				rows[t.area.Name] = append(rows[t.area.Name], row)
				mu.Unlock()
			}
		}()
	}

	for _, area := range areas {
		for _, date := range r.cfg.Range.Dates() {
			for _, layer := range layers {
				tasks <- sceneTask{area: area, layer: layer, date: date}
			}
		}
	}
	close(tasks)
	wg.Wait()

	if fatal != nil {
		return fatal
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, area := range areas {
		if _, err := r.writer.WriteSummary(area, r.cfg.Range, prefix, rows[area.Name]); err != nil {
			return err
		}
	}
	return nil
}

// processScene runs one scene end to end. Only unrecoverable conditions
// (authentication, cancellation, disk failures) come back as errors; a scene
// that yields no data reports a missing row instead.
func (r *Runner) processScene(ctx context.Context, t sceneTask) (output.SummaryRow, error) {
	missing := output.SummaryRow{Date: t.date, Layer: t.layer.Short, Missing: true}

	res := r.client.Fetch(ctx, t.layer, t.area.Envelope(), t.date)
	switch res.Status {
	case coverage.StatusFatal:
		return output.SummaryRow{}, res.Err
	case coverage.StatusMissing:
		return missing, nil
	}

	tile, valid, err := assemble.Assemble(res.Tile, t.area)
	if err != nil {
		log.Printf("runner: %s %s %s: %v, treating as missing", t.area.Name, t.layer.Short, t.date.Format(daterange.ISODate), err)
		return missing, nil
	}

	if _, err := r.writer.WriteRaw(t.area, t.layer, t.date, tile); err != nil {
		return output.SummaryRow{}, err
	}

	kind, derived, err := derive(t.layer, tile)
	if err != nil {
		log.Printf("runner: %s %s %s: %v, treating as missing", t.area.Name, t.layer.Short, t.date.Format(daterange.ISODate), err)
		return missing, nil
	}
	if _, err := r.writer.WriteIndex(t.area, kind, t.date, derived); err != nil {
		return output.SummaryRow{}, err
	}
	if _, err := r.writer.WriteQuicklook(t.area, kind, t.date, derived); err != nil {
		return output.SummaryRow{}, err
	}

	return output.SummaryRow{
		Date:  t.date,
		Layer: t.layer.Short,
		Valid: valid,
		Total: tile.TotalPixels(),
	}, nil
}

func derive(layer coverage.Layer, tile *raster.Tile) (string, *raster.Tile, error) {
	switch layer.Family {
	case coverage.FamilyRadar:
		t, err := index.RVI(tile)
		return "rvi", t, err
	case coverage.FamilyOptical:
		t, err := index.NDVI(tile)
		return "ndvi", t, err
	default:
		return "", nil, fmt.Errorf("no derivation for family %s", layer.Family)
	}
}

func (r *Runner) runWeather(ctx context.Context, areas []*aoi.AreaOfInterest) error {
	for _, area := range areas {
		recs, err := r.weather.Series(ctx, area, r.cfg.Range, r.cfg.GDDBase)
		if err != nil {
			return err
		}
		if _, err := r.writer.WriteWeather(area, r.cfg.Range, r.cfg.GDDBase, recs); err != nil {
			return err
		}
	}
	return nil
}

// runFillTable joins previously extracted index rasters with fresh weather
// series into one database row per (field, day).
func (r *Runner) runFillTable(ctx context.Context, areas []*aoi.AreaOfInterest) error {
	if r.sink == nil {
		return errors.New("runner: fill-table mode without a database sink")
	}

	for _, area := range areas {
		recs, err := r.weather.Series(ctx, area, r.cfg.Range, r.cfg.GDDBase)
		if err != nil {
			return err
		}

		id := sink.FieldID(area.Geometry, r.cfg.CropType)
		rows := make([]sink.Record, 0, len(recs))
		for _, wr := range recs {
			ndviRaster, ndviMean := r.indexArtifact(area, "ndvi", wr.Date)
			rviRaster, rviMean := r.indexArtifact(area, "rvi", wr.Date)
			rows = append(rows, sink.Record{
				FieldID:    id,
				CropType:   r.cfg.CropType,
				Date:       wr.Date,
				NDVIRaster: ndviRaster,
				RVIRaster:  rviRaster,
				NDVIMean:   ndviMean,
				RVIMean:    rviMean,
				Precip:     wr.Precip,
				TempMean:   wr.TempMean,
				TempMin:    wr.TempMin,
				TempMax:    wr.TempMax,
				GDD:        wr.GDD,
			})
		}

		n, err := r.sink.InsertSeries(ctx, rows)
		if err != nil {
			return err
		}
		log.Printf("runner: %s: wrote %d of %d rows", area.Name, n, len(rows))
	}
	return nil
}

// indexArtifact loads a derived raster and its masked mean for a date.
// Acquisitions do not always land on the nominal day, so the exact date is
// tried first and then its two neighbors.
func (r *Runner) indexArtifact(area *aoi.AreaOfInterest, kind string, date time.Time) ([]byte, sql.NullFloat64) {
	for _, off := range []int{0, -1, 1} {
		data, err := os.ReadFile(r.writer.IndexPath(area, kind, date.AddDate(0, 0, off)))
		if err != nil {
			continue
		}
		tile, err := raster.DecodeGeoTIFF(data)
		if err != nil {
			continue
		}
		if m, ok := index.Mean(tile); ok {
			return data, sql.NullFloat64{Float64: m, Valid: true}
		}
	}
	return nil, sql.NullFloat64{}
}

package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/geofield/agriseries/internal/aoi"
	"github.com/geofield/agriseries/internal/config"
	"github.com/geofield/agriseries/internal/coverage"
	"github.com/geofield/agriseries/internal/output"
	"github.com/geofield/agriseries/internal/runner"
	"github.com/geofield/agriseries/internal/sink"
)

func main() {
	var cli config.CLI
	kctx := kong.Parse(&cli,
		kong.Name("agriseries"),
		kong.Description("Per-field satellite and weather time series extraction."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kctx.FatalIfErrorf(run(ctx, &cli))
}

func run(ctx context.Context, cli *config.CLI) error {
	rng, err := cli.Range()
	if err != nil {
		return err
	}

	areas, broken, err := aoi.LoadPath(cli.AOI, cli.PointBuffer)
	if err != nil {
		return err
	}
	for _, berr := range broken {
		log.Printf("skipping polygon: %v", berr)
	}
	log.Printf("loaded %d polygons, range %s (%d days), mode %s", len(areas), rng, rng.Len(), cli.Mode)

	writer, err := output.NewWriter(cli.Out)
	if err != nil {
		return err
	}

	if cli.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cli.MetricsAddr, mux); err != nil {
				log.Printf("metrics listener: %v", err)
			}
		}()
	}

	var recorder runner.Recorder
	if cli.Mode == "fill-table" {
		s, err := sink.Open(ctx, cli.SinkDriver, cli.SinkDSN, cli.SinkTable)
		if err != nil {
			return err
		}
		defer s.Close()
		recorder = s
	}

	client := coverage.NewClient(cli.Host, coverage.Credentials{User: cli.User, Password: cli.Password})
	r := runner.New(runner.Config{
		Mode:     cli.Mode,
		Orbit:    cli.Orbit,
		Range:    rng,
		GDDBase:  cli.GDDBase,
		CropType: cli.CropType,
		Workers:  cli.Workers,
	}, client, writer, recorder)

	if err := r.Run(ctx, areas); err != nil {
		return err
	}
	log.Printf("run complete, artifacts under %s", writer.Root())
	return nil
}

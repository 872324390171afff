// Package config declares the command line surface. Flags bind to
// environment variables where secrets are involved, and a local .env file is
// folded in before parsing.
package config

import (
	"fmt"

	"github.com/geofield/agriseries/internal/daterange"
)

// CLI is the full flag set of the extraction command. Once parsed it is
// treated as immutable; every stage receives the values it needs at
// construction and nothing mutates them mid-run.
type CLI struct {
	Start string `help:"First day of the range (YYYY-MM-DD)." required:""`
	End   string `help:"Last day of the range, inclusive (YYYY-MM-DD)." required:""`

	AOI string `help:"GeoJSON polygon file, or a directory of them." required:"" type:"path"`
	Out string `help:"Root directory for artifacts." default:"out" type:"path"`

	Mode  string `help:"Pipeline mode." enum:"radar,optical,both,weather,all,fill-table" default:"radar"`
	Orbit string `help:"Radar orbit selection." enum:"asc,desc,both" default:"both"`

	Host     string `help:"Coverage service endpoint." default:"https://datacube.julius-kuehn.de/flf/ows"`
	User     string `help:"Coverage service user." env:"COVERAGE_USER"`
	Password string `help:"Coverage service password." env:"COVERAGE_PASSWORD"`

	GDDBase     float64 `name:"gdd-base" help:"Base temperature for growing degree days." default:"5"`
	PointBuffer float64 `name:"point-buffer" help:"Square buffer edge in metres for point AOIs." default:"2000"`
	CropType    string  `name:"crop-type" help:"Crop type tag carried into database rows."`

	SinkDriver string `name:"sink-driver" help:"Database driver for fill-table mode." enum:"postgres,sqlite" default:"postgres"`
	SinkDSN    string `name:"sink-dsn" help:"Database DSN for fill-table mode." env:"SINK_DSN"`
	SinkTable  string `name:"sink-table" help:"Target table for fill-table mode." default:"field_series"`

	Workers     int    `help:"Concurrent coverage requests." default:"4"`
	MetricsAddr string `name:"metrics-addr" help:"Listen address for Prometheus metrics, empty disables."`
}

// Range parses the configured date window.
func (c *CLI) Range() (daterange.Range, error) {
	return daterange.Parse(c.Start, c.End)
}

// Validate runs after flag parsing.
func (c *CLI) Validate() error {
	if _, err := c.Range(); err != nil {
		return err
	}
	if c.User == "" || c.Password == "" {
		return fmt.Errorf("coverage service credentials missing, set COVERAGE_USER and COVERAGE_PASSWORD")
	}
	if c.Mode == "fill-table" && c.SinkDSN == "" {
		return fmt.Errorf("fill-table mode needs --sink-dsn")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	return nil
}

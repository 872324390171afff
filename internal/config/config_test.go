package config

import (
	"errors"
	"testing"

	"github.com/geofield/agriseries/internal/daterange"
)

func validCLI() CLI {
	return CLI{
		Start:    "2024-06-01",
		End:      "2024-06-03",
		AOI:      "fields.geojson",
		Mode:     "radar",
		User:     "svc",
		Password: "secret",
		Workers:  4,
	}
}

func TestValidateMissingCredentials(t *testing.T) {
	c := validCLI()
	c.Password = ""
	if err := c.Validate(); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	c := validCLI()
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestValidateReversedRange(t *testing.T) {
	c := validCLI()
	c.Start, c.End = c.End, c.Start
	if err := c.Validate(); !errors.Is(err, daterange.ErrInvalidRange) {
		t.Fatalf("got %v, want ErrInvalidRange", err)
	}
}

func TestValidateFillTableNeedsDSN(t *testing.T) {
	c := validCLI()
	c.Mode = "fill-table"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error without --sink-dsn")
	}
	c.SinkDSN = "postgres://localhost/fields"
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestValidateWorkers(t *testing.T) {
	c := validCLI()
	c.Workers = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for zero workers")
	}
}

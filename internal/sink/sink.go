// Package sink persists per-field daily statistics into an existing SQL
// table. The pipeline never owns the table's schema: if the configured table
// is absent the run fails up front instead of creating one.
package sink

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/geofield/agriseries/internal/metrics"
)

// ErrTableMissing reports that the target table does not exist.
var ErrTableMissing = errors.New("sink: target table missing")

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// Record is one (field, date) row. Invalid fields map to SQL NULL; the
// raster columns carry the encoded GeoTIFF of the day's derived index, when
// one exists.
type Record struct {
	FieldID    string          `db:"field_id"`
	CropType   string          `db:"crop_type"`
	Date       time.Time       `db:"date"`
	NDVIRaster []byte          `db:"ndvi_raster"`
	RVIRaster  []byte          `db:"rvi_raster"`
	NDVIMean   sql.NullFloat64 `db:"ndvi_mean"`
	RVIMean    sql.NullFloat64 `db:"rvi_mean"`
	Precip     sql.NullInt64   `db:"precip"`
	TempMean   sql.NullInt64   `db:"temp_mean"`
	TempMin    sql.NullInt64   `db:"temp_min"`
	TempMax    sql.NullInt64   `db:"temp_max"`
	GDD        sql.NullFloat64 `db:"gdd"`
}

// FieldID derives the stable row key for a field: the hex SHA-256 of the
// field geometry's WKT and its crop type. Identical geometry under two crop
// types yields two distinct fields.
func FieldID(g orb.Geometry, cropType string) string {
	h := sha256.New()
	h.Write([]byte(wkt.MarshalString(g)))
	h.Write([]byte{'|'})
	h.Write([]byte(cropType))
	return hex.EncodeToString(h.Sum(nil))
}

// Sink writes records into one table of an open database.
type Sink struct {
	db    *sqlx.DB
	table string
}

// Open connects and verifies the target table exists.
func Open(ctx context.Context, driver, dsn, table string) (*Sink, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("sink: invalid table name %q", table)
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sink: connect: %w", err)
	}
	s := &Sink{db: db, table: table}
	if err := s.ensureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) Close() error { return s.db.Close() }

func (s *Sink) ensureTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE 1=0", s.table)); err != nil {
		return fmt.Errorf("%w: %s (%v)", ErrTableMissing, s.table, err)
	}
	return nil
}

// InsertSeries upserts records keyed on (field_id, date). A failing row is
// logged and skipped so one bad record does not abort the series; the return
// value counts rows actually written.
func (s *Sink) InsertSeries(ctx context.Context, recs []Record) (int, error) {
	stmt := fmt.Sprintf(`INSERT INTO %s
		(field_id, crop_type, date, ndvi_raster, rvi_raster, ndvi_mean, rvi_mean, precip, temp_mean, temp_min, temp_max, gdd)
		VALUES (:field_id, :crop_type, :date, :ndvi_raster, :rvi_raster, :ndvi_mean, :rvi_mean, :precip, :temp_mean, :temp_min, :temp_max, :gdd)
		ON CONFLICT (field_id, date) DO UPDATE SET
		crop_type = excluded.crop_type,
		ndvi_raster = excluded.ndvi_raster,
		rvi_raster = excluded.rvi_raster,
		ndvi_mean = excluded.ndvi_mean,
		rvi_mean = excluded.rvi_mean,
		precip = excluded.precip,
		temp_mean = excluded.temp_mean,
		temp_min = excluded.temp_min,
		temp_max = excluded.temp_max,
		gdd = excluded.gdd`, s.table)

	written := 0
	for _, rec := range recs {
		if _, err := s.db.NamedExecContext(ctx, stmt, rec); err != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			metrics.SinkRows.WithLabelValues("error").Inc()
			log.Printf("sink: row %s @ %s: %v", rec.FieldID[:12], rec.Date.Format("2006-01-02"), err)
			continue
		}
		metrics.SinkRows.WithLabelValues("ok").Inc()
		written++
	}
	return written, nil
}

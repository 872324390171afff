package coverage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/paulmach/orb"

	"github.com/geofield/agriseries/internal/daterange"
	"github.com/geofield/agriseries/internal/metrics"
	"github.com/geofield/agriseries/internal/raster"
)

// ErrAuthentication marks a credential rejection by the coverage service.
// It is never retried: no later request with the same credentials can
// succeed, so the whole run aborts.
var ErrAuthentication = errors.New("coverage service rejected credentials")

// errMissing is internal marker state for unavailable slices; it surfaces as
// StatusMissing, never as an error value.
var errMissing = errors.New("coverage slice missing")

// Status tags a fetch outcome. Transient failures are retried inside the
// client and collapse into StatusMissing once retries are exhausted, so the
// caller only ever sees the three terminal states.
type Status int

const (
	StatusOK Status = iota
	StatusMissing
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMissing:
		return "missing"
	default:
		return "fatal"
	}
}

// Result is the tagged outcome of one coverage retrieval.
type Result struct {
	Status Status
	Tile   *raster.Tile
	Err    error
}

// Credentials authenticate every request against the coverage service.
type Credentials struct {
	User     string
	Password string
}

// Client issues WCS GetCoverage requests. It keeps no state between calls;
// retry policy is bounded exponential backoff local to each call.
type Client struct {
	host       string
	creds      Credentials
	httpClient *http.Client
	maxRetries uint64
}

// NewClient builds a client for the given service endpoint.
func NewClient(host string, creds Credentials) *Client {
	return &Client{
		host:       host,
		creds:      creds,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxRetries: 4,
	}
}

// Fetch retrieves one daily slice of a layer clipped to the given extent in
// the layer's native CRS. The returned tile carries the layer's band names.
// Unavailable or empty slices come back as StatusMissing so the date is
// skipped rather than aborting the run; only authentication failures (and
// context cancellation) are fatal.
func (c *Client) Fetch(ctx context.Context, layer Layer, extent orb.Bound, date time.Time) Result {
	q := url.Values{}
	q.Set("service", "WCS")
	q.Set("version", "2.0.1")
	q.Set("request", "GetCoverage")
	q.Set("coverageId", layer.ID)
	q.Set("format", "image/tiff")
	q["subset"] = []string{
		fmt.Sprintf("E(%f,%f)", extent.Min[0], extent.Max[0]),
		fmt.Sprintf("N(%f,%f)", extent.Min[1], extent.Max[1]),
		fmt.Sprintf(`ansi("%sT%s")`, date.Format(daterange.ISODate), layer.DayStart),
	}

	body, err := c.get(ctx, layer, q)
	if err != nil {
		return c.classify(layer, err)
	}

	tile, err := raster.DecodeGeoTIFF(body)
	if err != nil {
		log.Printf("coverage: %s %s: undecodable response, skipping: %v", layer.ID, date.Format(daterange.ISODate), err)
		metrics.CoverageRequests.WithLabelValues(layer.Short, StatusMissing.String()).Inc()
		return Result{Status: StatusMissing}
	}

	if len(tile.Bands) != len(layer.Bands) {
		log.Printf("coverage: %s %s: got %d bands, want %d, skipping", layer.ID, date.Format(daterange.ISODate), len(tile.Bands), len(layer.Bands))
		metrics.CoverageRequests.WithLabelValues(layer.Short, StatusMissing.String()).Inc()
		return Result{Status: StatusMissing}
	}
	for i := range tile.Bands {
		tile.Bands[i].Name = layer.Bands[i]
	}
	if tile.CellSize == 0 {
		tile.CellSize = layer.CellSize
	}

	if tile.ValidCount() == 0 {
		metrics.CoverageRequests.WithLabelValues(layer.Short, StatusMissing.String()).Inc()
		return Result{Status: StatusMissing}
	}

	metrics.CoverageRequests.WithLabelValues(layer.Short, StatusOK.String()).Inc()
	return Result{Status: StatusOK, Tile: tile}
}

// FetchSeries retrieves the daily value series of a weather layer at a
// single point across the whole range, one value per day.
func (c *Client) FetchSeries(ctx context.Context, layer Layer, pt orb.Point, rng daterange.Range) ([]float64, error) {
	q := url.Values{}
	q.Set("service", "WCS")
	q.Set("version", "2.0.1")
	q.Set("request", "GetCoverage")
	q.Set("coverageId", layer.ID)
	q.Set("format", "text/csv")
	q["subset"] = []string{
		fmt.Sprintf("E(%f)", pt[0]),
		fmt.Sprintf("N(%f)", pt[1]),
		fmt.Sprintf(`ansi("%sT%s","%sT%s")`,
			rng.Start.Format(daterange.ISODate), layer.DayStart,
			rng.End.Format(daterange.ISODate), layer.DayStart),
	}

	body, err := c.get(ctx, layer, q)
	if err != nil {
		if errors.Is(err, errMissing) {
			metrics.CoverageRequests.WithLabelValues(layer.Short, StatusMissing.String()).Inc()
			return nil, fmt.Errorf("series %s unavailable", layer.ID)
		}
		metrics.CoverageRequests.WithLabelValues(layer.Short, statusOf(err).String()).Inc()
		return nil, err
	}

	vals := parseSeries(string(body))
	if len(vals) == 0 {
		metrics.CoverageRequests.WithLabelValues(layer.Short, StatusMissing.String()).Inc()
		return nil, fmt.Errorf("series %s returned no values", layer.ID)
	}
	metrics.CoverageRequests.WithLabelValues(layer.Short, StatusOK.String()).Inc()
	return vals, nil
}

// get performs the HTTP exchange with bounded exponential backoff. Transport
// errors and 5xx/429 responses are retried; 401/403 aborts immediately with
// ErrAuthentication; other client errors mark the slice missing.
func (c *Client) get(ctx context.Context, layer Layer, q url.Values) ([]byte, error) {
	reqURL := c.host + "?" + q.Encode()

	var body []byte
	operation := func() error {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.SetBasicAuth(c.creds.User, c.creds.Password)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", layer.ID, err)
		}
		defer resp.Body.Close()
		metrics.CoverageLatency.WithLabelValues(layer.Short).Observe(time.Since(start).Seconds())

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: status %d", ErrAuthentication, resp.StatusCode))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("fetch %s: status %d", layer.ID, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("%w: status %d", errMissing, resp.StatusCode))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// classify maps a terminal request error onto a fetch result.
func (c *Client) classify(layer Layer, err error) Result {
	st := statusOf(err)
	metrics.CoverageRequests.WithLabelValues(layer.Short, st.String()).Inc()
	switch st {
	case StatusFatal:
		return Result{Status: StatusFatal, Err: err}
	default:
		log.Printf("coverage: %s unavailable: %v", layer.ID, err)
		return Result{Status: StatusMissing}
	}
}

func statusOf(err error) Status {
	switch {
	case errors.Is(err, ErrAuthentication), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusFatal
	default:
		// Retry exhaustion and declined slices both mean the date has no
		// usable data.
		return StatusMissing
	}
}

// parseSeries splits a text/csv coverage response into float values. The
// service wraps series in braces or brackets depending on the layer, so all
// common delimiters are stripped.
func parseSeries(body string) []float64 {
	cleaned := strings.NewReplacer("{", " ", "}", " ", "[", " ", "]", " ", "(", " ", ")", " ", "\"", " ", ",", " ", "\n", " ").Replace(body)
	fields := strings.Fields(cleaned)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

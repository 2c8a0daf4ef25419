// Package client holds outbound HTTP adapters.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/infra/resilience"
)

var tracer = otel.Tracer("client")

// HijriTableClient fetches authoritative Hijri → Gregorian entries from a
// JSON endpoint serving GET {baseURL}/{year} → []HijriTableEntry.
type HijriTableClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewHijriTableClient creates a new HijriTableClient.
func NewHijriTableClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *HijriTableClient {
	return &HijriTableClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		cfg:        cfg,
	}
}

// FetchYear fetches the entries of one Gregorian year with retry, circuit
// breaker, and tracing. A 404 means the source has no data for the year.
func (c *HijriTableClient) FetchYear(ctx context.Context, year int) ([]domain.HijriTableEntry, error) {
	ctx, span := tracer.Start(ctx, "HijriTableClient.FetchYear")
	defer span.End()
	span.SetAttributes(attribute.Int("calendar.year", year))

	result, err := c.cb.Execute(func() (any, error) {
		var entries []domain.HijriTableEntry
		innerErr := resilience.RetryIf(ctx, c.cfg, retryable, func() error {
			url := fmt.Sprintf("%s/%d", c.baseURL, year)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return &domain.ErrNotFound{Resource: "hijri table year", ID: fmt.Sprint(year)}
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("hijri table returned status %d", resp.StatusCode)
			}

			entries = nil
			return json.NewDecoder(resp.Body).Decode(&entries)
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return entries, nil
	})
	if err != nil {
		if domain.IsDomainError(err) {
			return nil, err
		}
		return nil, &domain.ErrExternalService{Service: "hijri-table", Err: err}
	}

	entries := result.([]domain.HijriTableEntry)
	for i := range entries {
		if entries[i].Year == 0 {
			entries[i].Year = year
		}
	}
	return entries, nil
}

func retryable(err error) bool {
	return !domain.IsDomainError(err)
}

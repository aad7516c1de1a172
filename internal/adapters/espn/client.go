package espn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/squarebot/internal/domain"
	"github.com/alejandrodnm/squarebot/internal/ports"
)

const (
	defaultBase = "https://site.api.espn.com/apis/site/v2/sports"

	// La API pública no documenta límites; 2 req/s con burst 4 es conservador.
	defaultRatePerSec = 2
	defaultBurst      = 4

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client es el HTTP client del summary de ESPN con rate limiting y retries.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

// NewClient crea un Client. base vacío usa la API pública; ratePerSec <= 0
// usa el default.
func NewClient(base string, ratePerSec float64) *Client {
	if base == "" {
		base = defaultBase
	}
	if ratePerSec <= 0 {
		ratePerSec = defaultRatePerSec
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), defaultBurst),
	}
}

// FetchGame trae el summary del partido y lo convierte a domain.GameFeed.
func (c *Client) FetchGame(ctx context.Context, game domain.Game) (domain.GameFeed, error) {
	if game.EventID == "" {
		return domain.GameFeed{}, fmt.Errorf("espn.FetchGame: empty event id")
	}
	u := fmt.Sprintf("%s/%s/%s/summary?event=%s",
		c.base, url.PathEscape(game.Sport), url.PathEscape(game.League), url.QueryEscape(game.EventID))

	var raw summaryResponse
	if err := c.get(ctx, u, &raw); err != nil {
		return domain.GameFeed{}, fmt.Errorf("espn.FetchGame %s: %w", game.EventID, err)
	}
	return mapSummary(game.EventID, raw), nil
}

// ParseSummary convierte un summary guardado (replay, simulación) con el
// mismo mapeo que FetchGame.
func ParseSummary(eventID string, data []byte) (domain.GameFeed, error) {
	var raw summaryResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.GameFeed{}, fmt.Errorf("espn.ParseSummary: %w", err)
	}
	return mapSummary(eventID, raw), nil
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, url string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial, respetando el contexto.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by provider", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

var _ ports.ScoreProvider = (*Client)(nil)

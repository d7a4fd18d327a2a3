package perps

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultCollateralDenom = "uusdc"

	// Rate limits conservadores: los nodos LCD públicos cortan a ~10 req/s.
	queryRatePerSec = 5
	bankRatePerSec  = 2
	execRatePerSec  = 1

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
	maxErrorBody  = 4096
)

// Config agrupa los endpoints del adapter.
type Config struct {
	LCDBase         string // REST del nodo (cosmwasm + bank)
	GatewayBase     string // gateway de ejecución firmada
	Contract        string // dirección del contrato de perpetuos
	CollateralDenom string // denom del colateral en el bank module
	Timeout         time.Duration
}

// Client es el cliente de lectura del contrato de perpetuos, con rate limiting y retries.
// Implementa ports.MarketData.
type Client struct {
	http            *http.Client
	lcdBase         string
	contract        string
	collateralDenom string
	queryLimiter    *rate.Limiter
	bankLimiter     *rate.Limiter
}

// NewClient crea un Client. Si CollateralDenom está vacío usa uusdc.
func NewClient(cfg Config) *Client {
	if cfg.CollateralDenom == "" {
		cfg.CollateralDenom = defaultCollateralDenom
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		http:            &http.Client{Timeout: cfg.Timeout},
		lcdBase:         cfg.LCDBase,
		contract:        cfg.Contract,
		collateralDenom: cfg.CollateralDenom,
		queryLimiter:    rate.NewLimiter(queryRatePerSec, 5),
		bankLimiter:     rate.NewLimiter(bankRatePerSec, 2),
	}
}

// smartQuery ejecuta una query de solo lectura contra el contrato y devuelve
// el campo "data" de la respuesta sin decodificar.
func (c *Client) smartQuery(ctx context.Context, msg any) ([]byte, error) {
	q, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	u := fmt.Sprintf("%s/cosmwasm/wasm/v1/contract/%s/smart/%s",
		c.lcdBase, url.PathEscape(c.contract), url.PathEscape(base64.StdEncoding.EncodeToString(q)))

	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := c.get(ctx, c.queryLimiter, u, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil, fmt.Errorf("empty data in smart query response")
	}
	return resp.Data, nil
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	body, err := c.doWithRetry(ctx, limiter, maxRetries, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// post hace un POST JSON con los headers dados. retries = 0 desactiva los
// reintentos (las ejecuciones no son idempotentes).
func (c *Client) post(ctx context.Context, limiter *rate.Limiter, retries int, url string, body []byte, headers map[string]string) ([]byte, error) {
	return c.doWithRetry(ctx, limiter, retries, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return c.http.Do(req)
	})
}

// httpError es una respuesta 4xx, o 5xx tras agotar los reintentos. El body
// se conserva porque el gateway devuelve ahí los errores de ejecución
// (p. ej. account sequence mismatch).
type httpError struct {
	Status  int
	Body    string
	Retries int
}

func (e *httpError) Error() string {
	if e.Status >= 500 {
		return fmt.Sprintf("server error %d after %d retries: %s", e.Status, e.Retries, e.Body)
	}
	return fmt.Sprintf("client error %d: %s", e.Status, e.Body)
}

// doWithRetry ejecuta la función con backoff exponencial y devuelve el body.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, retries int, fn func() (*http.Response, error)) ([]byte, error) {
	for attempt := 0; attempt <= retries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == retries {
				return nil, fmt.Errorf("request failed after %d retries: %w", retries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by LCD", "attempt", attempt+1)
			if attempt == retries {
				return nil, fmt.Errorf("rate limited after %d retries", retries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			if attempt == retries {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
				resp.Body.Close()
				return nil, &httpError{Status: resp.StatusCode, Body: string(body), Retries: retries}
			}
			resp.Body.Close()
			c.sleep(ctx, attempt)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, &httpError{Status: resp.StatusCode, Body: string(body)}
		}
		return body, nil
	}
	return nil, fmt.Errorf("exhausted %d retries", retries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

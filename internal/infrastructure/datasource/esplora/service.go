package esplora

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/sony/gobreaker"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-wallet/internal/core/ports"
	"github.com/tdex-network/tdex-wallet/pkg/circuitbreaker"
	"github.com/tdex-network/tdex-wallet/pkg/util"
	"github.com/tdex-network/tdex-wallet/pkg/wallet"
	"go.uber.org/ratelimit"
)

const (
	// pageSize is the number of confirmed txs returned by esplora per page of
	// an address history.
	pageSize = 25
)

var (
	// ErrMissingURL ...
	ErrMissingURL = errors.New("missing esplora url")
)

// Config holds the settings of the esplora data source.
type Config struct {
	URL     string
	Network string
	// RequestTimeout defaults to util.DefaultTimeout.
	RequestTimeout time.Duration
	// RateLimit is the max number of requests per second, 0 means unlimited.
	RateLimit int
}

type esplora struct {
	apiURL  string
	network *chaincfg.Params
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	limiter ratelimit.Limiter
}

// NewService returns a new esplora service as a ports.DataSource interface.
func NewService(cfg Config) (ports.DataSource, error) {
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}
	network, err := wallet.NetworkByName(cfg.Network)
	if err != nil {
		return nil, err
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit must not be negative")
	}

	limiter := ratelimit.NewUnlimited()
	if cfg.RateLimit > 0 {
		limiter = ratelimit.New(cfg.RateLimit)
	}

	service := &esplora{
		apiURL:  strings.TrimSuffix(cfg.URL, "/"),
		network: network,
		client:  util.NewHTTPClient(cfg.RequestTimeout),
		cb:      circuitbreaker.NewCircuitBreaker("esplora"),
		limiter: limiter,
	}

	ctx, cancel := context.WithTimeout(context.Background(), service.client.Timeout)
	defer cancel()
	if _, err := service.GetTipHeight(ctx); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}

	return service, nil
}

type response struct {
	status int
	body   []byte
}

// request performs the http call through the rate limiter and the circuit
// breaker. Network failures and 5xx responses are returned as
// domain.ErrTransientNetwork, any other response is returned as is.
func (e *esplora) request(
	ctx context.Context, method, path, body string,
) (*response, error) {
	e.limiter.Take()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	header := map[string]string{}
	if method == http.MethodPost {
		header["Content-Type"] = "text/plain"
	}
	url := e.apiURL + path

	res, err := e.cb.Execute(func() (interface{}, error) {
		status, resp, err := util.NewHTTPRequest(
			ctx, e.client, method, url, body, header,
		)
		if err != nil {
			return nil, err
		}
		if status >= http.StatusInternalServerError ||
			status == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%s %s: status %d: %s", method, path, status, resp)
		}
		return &response{status, resp}, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrTransientNetwork, err)
	}
	return res.(*response), nil
}

// get performs a GET request and returns the body of a 200 response.
func (e *esplora) get(ctx context.Context, path string) ([]byte, error) {
	resp, err := e.request(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, fmt.Errorf(
			"GET %s: status %d: %s", path, resp.status, strings.TrimSpace(string(resp.body)),
		)
	}
	return resp.body, nil
}

package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gregtusar/basisarb/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultSpotBaseURL    = "https://api.binance.com"
	DefaultFuturesBaseURL = "https://fapi.binance.com"
	DefaultSpotWSURL      = "wss://stream.binance.com:9443/ws"
	DefaultFuturesWSURL   = "wss://fstream.binance.com/ws"
)

type Options struct {
	APIKey            string
	APISecret         string
	BaseURL           string
	RecvWindow        time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// BaseClient carries what the spot margin and futures clients share: signing,
// rate limiting and error decoding.
type BaseClient struct {
	apiKey     string
	baseURL    string
	auth       Authenticator
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

func newBaseClient(opts Options, defaultURL string, logger *logrus.Logger) BaseClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return BaseClient{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		auth:       NewHMACAuthenticator(opts.APIKey, opts.APISecret, opts.RecvWindow),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)),
		logger:     logger,
	}
}

// doRequest sends params as the query string and decodes a 2xx JSON body into
// out. Exchange rejections come back as the typed errors in pkg/models.
func (c *BaseClient) doRequest(ctx context.Context, method, path string, params url.Values, signed bool, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if params == nil {
		params = url.Values{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if signed {
		if err := c.auth.Sign(req, params); err != nil {
			return fmt.Errorf("failed to sign request: %w", err)
		}
	} else {
		req.URL.RawQuery = params.Encode()
		if c.apiKey != "" {
			req.Header.Set("X-MBX-APIKEY", c.apiKey)
		}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, body)
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
			"code":   apiErr.Code,
		}).Debug("Exchange rejected request")
		return classifyError(apiErr)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func parseAPIError(status int, body []byte) *models.APIError {
	apiErr := &models.APIError{StatusCode: status}
	var payload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Msg
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

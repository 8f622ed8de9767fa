package ndax

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/coachpo/ndax-gateway/errs"
	"github.com/coachpo/ndax-gateway/internal/auth"
)

// exchangeStatus is the generic failure shape NDAX returns with HTTP 200.
type exchangeStatus struct {
	Result    *bool  `json:"result"`
	ErrorMsg  string `json:"errormsg"`
	ErrorCode int    `json:"errorcode"`
}

// RESTClient calls the NDAX AP endpoints. Responses are returned undecoded.
type RESTClient struct {
	cfg     RESTConfig
	baseURL *url.URL
	client  *http.Client
	limiter *rate.Limiter
	signer  *auth.Signer
	metrics *restMetrics
}

// RESTOption customises a RESTClient.
type RESTOption func(*RESTClient)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(client *http.Client) RESTOption {
	return func(c *RESTClient) {
		if client != nil {
			c.client = client
		}
	}
}

// NewRESTClient validates cfg and builds a client. signer may be nil when only public
// endpoints are used.
func NewRESTClient(cfg RESTConfig, signer *auth.Signer, opts ...RESTOption) (*RESTClient, error) {
	cfg = cfg.withDefaults()
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errs.New(component, errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("invalid rest base url %q", cfg.BaseURL)),
			errs.WithCause(err))
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	c := &RESTClient{
		cfg:     cfg,
		baseURL: base,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		signer:  signer,
		metrics: newRESTMetrics(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// AuthenticateUser exchanges a fresh signature for a session on the gateway.
func (c *RESTClient) AuthenticateUser(ctx context.Context) (json.RawMessage, error) {
	signer, err := c.requireSigner(endpointAuthenticateUser)
	if err != nil {
		return nil, err
	}
	headers := signer.Headers()
	params := url.Values{}
	params.Set("APIKey", headers.APIKey)
	params.Set("Signature", headers.Signature)
	params.Set("UserId", headers.UserID)
	params.Set("Nonce", headers.Nonce)
	return c.get(ctx, endpointAuthenticateUser, params, &headers)
}

// GetUserAccountInfos lists the accounts owned by the authenticated user.
func (c *RESTClient) GetUserAccountInfos(ctx context.Context) (json.RawMessage, error) {
	signer, err := c.requireSigner(endpointGetUserAccountInfos)
	if err != nil {
		return nil, err
	}
	creds := signer.Credentials()
	params := c.omsParams()
	params.Set("UserId", creds.UserID)
	params.Set("UserName", creds.AccountName)
	headers := signer.Headers()
	return c.get(ctx, endpointGetUserAccountInfos, params, &headers)
}

// CancelAllOrders cancels every working order on the configured account.
func (c *RESTClient) CancelAllOrders(ctx context.Context) (json.RawMessage, error) {
	return c.accountCall(ctx, endpointCancelAllOrders)
}

// GetOpenOrders lists working orders on the configured account.
func (c *RESTClient) GetOpenOrders(ctx context.Context) (json.RawMessage, error) {
	return c.accountCall(ctx, endpointGetOpenOrders)
}

// GetAssets lists the assets traded on the exchange. It needs no credentials.
func (c *RESTClient) GetAssets(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, endpointGetAssets, nil, nil)
}

func (c *RESTClient) accountCall(ctx context.Context, endpoint string) (json.RawMessage, error) {
	signer, err := c.requireSigner(endpoint)
	if err != nil {
		return nil, err
	}
	accountID := strings.TrimSpace(signer.Credentials().AccountID)
	if accountID == "" {
		return nil, errs.New(component, errs.CodeAuth,
			errs.WithMessage(endpoint+" requires an account id"))
	}
	params := c.omsParams()
	params.Set("AccountId", accountID)
	headers := signer.Headers()
	return c.get(ctx, endpoint, params, &headers)
}

func (c *RESTClient) omsParams() url.Values {
	params := url.Values{}
	params.Set("OMSId", strconv.Itoa(c.cfg.OMSID))
	return params
}

func (c *RESTClient) requireSigner(endpoint string) (*auth.Signer, error) {
	if c.signer == nil {
		return nil, errs.New(component, errs.CodeSigning,
			errs.WithMessage(endpoint+" requires API credentials"))
	}
	return c.signer, nil
}

func (c *RESTClient) endpoint(name string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: name}).String()
}

func (c *RESTClient) get(ctx context.Context, endpoint string, params url.Values, headers *auth.Headers) (json.RawMessage, error) {
	start := time.Now()
	body, err := c.do(ctx, endpoint, params, headers)
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.metrics.recordCall(ctx, endpoint, result, time.Since(start))
	return body, err
}

func (c *RESTClient) do(ctx context.Context, endpoint string, params url.Values, headers *auth.Headers) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s rate limit wait: %w", endpoint, err)
	}

	fullEndpoint := c.endpoint(endpoint)
	if len(params) > 0 {
		fullEndpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if headers != nil {
		headers.Apply(req.Header)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errs.New(component, errs.CodeNetwork,
			errs.WithMessage("request "+endpoint),
			errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		code := errs.CodeExchange
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			code = errs.CodeAuth
		}
		return nil, errs.New(component, code,
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage(fmt.Sprintf("%s status %d", endpoint, resp.StatusCode)),
			errs.WithRawMessage(strings.TrimSpace(string(excerpt))))
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	if err := checkExchangeStatus(endpoint, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// checkExchangeStatus turns {"result":false,...} bodies into errors; any other shape passes.
func checkExchangeStatus(endpoint string, raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var status exchangeStatus
	if err := json.Unmarshal(trimmed, &status); err != nil {
		return nil
	}
	if status.Result == nil || *status.Result {
		return nil
	}
	msg := strings.TrimSpace(status.ErrorMsg)
	if msg == "" {
		msg = "request rejected"
	}
	return errs.New(component, errs.CodeExchange,
		errs.WithHTTP(http.StatusOK),
		errs.WithMessage(endpoint+": "+msg),
		errs.WithField("errorcode", strconv.Itoa(status.ErrorCode)),
		errs.WithRawMessage(errs.Truncate(string(trimmed), errorBodyLimit)))
}

package ledger

import (
	"context"
	"encoding/json"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/hpungsan/heritage/internal/identity"
)

// DefaultTimeout bounds a ledger call when the context has no deadline.
const DefaultTimeout = 10 * time.Second

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	// Timeout applies when the context has no deadline. 0 means DefaultTimeout.
	Timeout time.Duration

	// Headers are sent with every request.
	Headers map[string]string

	// Dial overrides the network dialer (tests use an in-memory listener).
	Dial fasthttp.DialFunc

	Logger *zap.Logger
}

// HTTPClient is a Client for a JSON gateway in front of an ICRC-1 ledger.
//
// Endpoints, relative to the base URL:
//
//	POST /icrc1/balance_of           {"owner": "<principal>"}      -> {"balance": n}
//	POST /icrc1/transfer             TransferArgs                  -> {"ok": blockIndex} | {"err": TransferError}
//	GET  /icrc1/name                                               -> "..."
//	GET  /icrc1/symbol                                             -> "..."
//	GET  /icrc1/decimals                                           -> n
//	GET  /icrc1/fee                                                -> n
//	GET  /icrc1/total_supply                                       -> n
//	GET  /icrc1/supported_standards                                -> [{"name","url"}]
type HTTPClient struct {
	baseURL *url.URL
	client  *fasthttp.Client
	cfg     HTTPConfig
	log     *zap.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a ledger client for the gateway at baseURL.
func NewHTTPClient(baseURL string, cfg HTTPConfig) (*HTTPClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "can't parse ledger url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.Newf("unsupported ledger url scheme %q", parsed.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: parsed,
		client:  &fasthttp.Client{Dial: cfg.Dial, Name: "heritage"},
		cfg:     cfg,
		log:     log,
	}, nil
}

type balanceRequest struct {
	Owner identity.Identity `json:"owner"`
}

type balanceResponse struct {
	Balance uint64 `json:"balance"`
}

type transferResponse struct {
	Ok  *uint64        `json:"ok,omitempty"`
	Err *TransferError `json:"err,omitempty"`
}

func (h *HTTPClient) BalanceOf(ctx context.Context, account identity.Identity) (uint64, error) {
	var out balanceResponse
	if err := h.call(ctx, fasthttp.MethodPost, "/icrc1/balance_of", balanceRequest{Owner: account}, &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}

// Transfer submits a transfer. Transport failures are returned as KindTransport:
// the ledger may or may not have executed the transfer.
func (h *HTTPClient) Transfer(ctx context.Context, args TransferArgs) (uint64, error) {
	var out transferResponse
	if err := h.call(ctx, fasthttp.MethodPost, "/icrc1/transfer", args, &out); err != nil {
		if KindOf(err) != "" {
			return 0, err
		}
		return 0, errors.WithStack(&TransferError{Kind: KindTransport, Message: err.Error()})
	}
	switch {
	case out.Err != nil:
		if out.Err.Kind == "" {
			out.Err.Kind = KindGenericError
		}
		return 0, errors.WithStack(out.Err)
	case out.Ok != nil:
		return *out.Ok, nil
	default:
		return 0, NewTransferError(KindTransport, "ledger returned neither ok nor err")
	}
}

func (h *HTTPClient) Name(ctx context.Context) (string, error) {
	var out string
	err := h.call(ctx, fasthttp.MethodGet, "/icrc1/name", nil, &out)
	return out, err
}

func (h *HTTPClient) Symbol(ctx context.Context) (string, error) {
	var out string
	err := h.call(ctx, fasthttp.MethodGet, "/icrc1/symbol", nil, &out)
	return out, err
}

func (h *HTTPClient) Decimals(ctx context.Context) (uint8, error) {
	var out uint8
	err := h.call(ctx, fasthttp.MethodGet, "/icrc1/decimals", nil, &out)
	return out, err
}

func (h *HTTPClient) Fee(ctx context.Context) (uint64, error) {
	var out uint64
	err := h.call(ctx, fasthttp.MethodGet, "/icrc1/fee", nil, &out)
	return out, err
}

func (h *HTTPClient) TotalSupply(ctx context.Context) (uint64, error) {
	var out uint64
	err := h.call(ctx, fasthttp.MethodGet, "/icrc1/total_supply", nil, &out)
	return out, err
}

func (h *HTTPClient) SupportedStandards(ctx context.Context) ([]Standard, error) {
	var out []Standard
	err := h.call(ctx, fasthttp.MethodGet, "/icrc1/supported_standards", nil, &out)
	return out, err
}

// call performs one request and decodes the JSON response into out.
// Non-2xx responses are errors, except a transfer rejection carried in the body.
func (h *HTTPClient) call(ctx context.Context, method, p string, body any, out any) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseResponse(resp)
		fasthttp.ReleaseRequest(req)
	}()

	u := *h.baseURL
	u.Path = path.Join(u.Path, p)
	req.SetRequestURI(u.String())
	req.Header.SetMethod(method)
	for k, v := range h.cfg.Headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "can't marshal request body")
		}
		req.Header.SetContentType("application/json")
		req.SetBody(data)
	}

	start := time.Now()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = start.Add(h.cfg.Timeout)
	}
	err := h.client.DoDeadline(req, resp, deadline)
	h.log.Debug("ledger request",
		zap.String("method", method),
		zap.String("url", u.String()),
		zap.Duration("duration", time.Since(start)),
		zap.Int("status_code", resp.StatusCode()),
		zap.Error(err),
	)
	if err != nil {
		return errors.Wrapf(err, "url: %s", u.String())
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		// A rejected transfer may still carry a structured error.
		var rejected transferResponse
		if json.Unmarshal(resp.Body(), &rejected) == nil && rejected.Err != nil {
			if rejected.Err.Kind == "" {
				rejected.Err.Kind = KindGenericError
			}
			return errors.WithStack(rejected.Err)
		}
		return errors.Newf("ledger %s %s: status %d: %s", method, p, status, strings.TrimSpace(string(resp.Body())))
	}

	contentType := strings.ToLower(string(resp.Header.ContentType()))
	if !strings.HasPrefix(contentType, "application/json") {
		return errors.Errorf("unsupported content type: %s", contentType)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(err, "can't unmarshal json body from %s, %q", u.String(), string(resp.Body()))
	}
	return nil
}

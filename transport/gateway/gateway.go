// Package gateway is a proxy.Transport that reaches remote services
// through an HTTP gateway, speaking either JSON-RPC or a CBOR envelope.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/ggoodman/candid-explorer-go/internal/logctx"
	"github.com/ggoodman/candid-explorer-go/proxy"
)

// Codec selects the request encoding.
type Codec string

const (
	JSONRPC Codec = "jsonrpc"
	CBOR    Codec = "cbor"
)

// ParseCodec accepts "jsonrpc" or "cbor", case-insensitively. The empty
// string selects JSONRPC.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(JSONRPC), "json":
		return JSONRPC, nil
	case string(CBOR):
		return CBOR, nil
	}
	return "", fmt.Errorf("gateway: unknown codec %q", s)
}

const (
	jsonMIME = "application/json"
	cborMIME = "application/cbor"
)

var (
	jsonMediaType = contenttype.NewMediaType(jsonMIME)
	cborMediaType = contenttype.NewMediaType(cborMIME)
)

// ErrUnexpectedResponse is returned for responses that are neither a
// reply nor a recognizable rejection.
var ErrUnexpectedResponse = errors.New("gateway: unexpected response")

// Config configures a Transport.
type Config struct {
	// URL is the gateway base URL, e.g. "https://icp-api.io".
	URL   string
	Codec Codec
	// Credentials, when set, adds a bearer token to every request.
	Credentials Credentials
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Transport implements proxy.Transport and proxy.Pinger.
type Transport struct {
	base   *url.URL
	codec  Codec
	creds  Credentials
	client *http.Client
	log    *slog.Logger
}

var (
	_ proxy.Transport = (*Transport)(nil)
	_ proxy.Pinger    = (*Transport)(nil)
)

// New validates cfg and returns a Transport.
func New(cfg Config) (*Transport, error) {
	if cfg.URL == "" {
		return nil, errors.New("gateway: URL is required")
	}
	base, err := url.Parse(cfg.URL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway: invalid URL %q", cfg.URL)
	}
	if cfg.Codec == "" {
		cfg.Codec = JSONRPC
	}
	if cfg.Codec != JSONRPC && cfg.Codec != CBOR {
		return nil, fmt.Errorf("gateway: unknown codec %q", cfg.Codec)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Transport{
		base:   base,
		codec:  cfg.Codec,
		creds:  cfg.Credentials,
		client: cfg.HTTPClient,
		log:    logctx.Wrap(cfg.Logger),
	}, nil
}

// Invoke sends one call and decodes its reply.
func (t *Transport) Invoke(ctx context.Context, req proxy.Request) ([]any, error) {
	reqID := uuid.NewString()
	var (
		target string
		body   []byte
		err    error
	)
	switch t.codec {
	case CBOR:
		target = t.resolve("api", "v2", "canister", req.Endpoint, cborVerb(req))
		body, err = encodeCBOR(req)
	default:
		target = t.base.String()
		body, err = encodeJSONRPC(reqID, req)
	}
	if err != nil {
		return nil, err
	}

	ctx = logctx.WithRequestData(ctx, &logctx.RequestData{RequestID: reqID, URL: target, Codec: string(t.codec)})
	start := time.Now()
	resp, err := t.post(ctx, req.Endpoint, target, body)
	if err != nil {
		t.log.WarnContext(ctx, "gateway.call.failed", slog.Any("err", err))
		return nil, err
	}
	defer resp.Body.Close()

	results, err := t.decode(resp, reqID)
	t.log.DebugContext(ctx, "gateway.call.done",
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)),
		slog.Bool("ok", err == nil))
	return results, err
}

// Ping checks the gateway status endpoint.
func (t *Transport) Ping(ctx context.Context, endpoint string) error {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, t.resolve("api", "v2", "status"), nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway: status endpoint returned %s", resp.Status)
	}
	return nil
}

func (t *Transport) resolve(segments ...string) string {
	u := *t.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.Join(segments, "/")
	return u.String()
}

func (t *Transport) post(ctx context.Context, endpoint, target string, body []byte) (*http.Response, error) {
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if t.codec == CBOR {
		r.Header.Set("Content-Type", cborMIME)
		r.Header.Set("Accept", cborMIME)
	} else {
		r.Header.Set("Content-Type", jsonMIME)
		r.Header.Set("Accept", jsonMIME)
	}
	if t.creds != nil {
		tok, err := t.creds.Token(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("gateway: credentials: %w", err)
		}
		r.Header.Set("Authorization", "Bearer "+tok)
	}
	return t.client.Do(r)
}

// decode picks the codec from the response Content-Type so that gateways
// answering errors in JSON are still understood on the CBOR path.
func (t *Transport) decode(resp *http.Response, reqID string) ([]any, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("gateway: read body: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &proxy.RejectError{Code: proxy.RejectCanisterReject, Message: "not authorized: " + strings.TrimSpace(string(raw))}
	}

	mt, err := contenttype.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case err == nil && mt.Matches(cborMediaType):
		return decodeCBOR(raw)
	case err == nil && mt.Matches(jsonMediaType):
		return decodeJSONRPC(raw, reqID)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s: %s", ErrUnexpectedResponse, resp.Status, strings.TrimSpace(string(raw)))
	}
	return nil, fmt.Errorf("%w: content type %q", ErrUnexpectedResponse, resp.Header.Get("Content-Type"))
}

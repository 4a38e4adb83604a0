// Package transport is the thin HTTP/HTTPS executor used by every adapter
// (C3): URL assembly, charset handling (including GBK decoding for
// West.cn), status-code interpretation, and JSON parsing with raw-body
// preservation on parse failure. See spec §4.3.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

// Charset selects how the response body is decoded before it reaches the
// caller as a string.
type Charset string

const (
	CharsetUTF8 Charset = "utf-8"
	CharsetGBK  Charset = "gbk"
)

// Request describes one HTTP call an adapter wants executed.
type Request struct {
	Method      string
	URL         string
	Query       map[string]string
	Headers     map[string]string
	Body        []byte
	Charset     Charset
	ParseJSON   bool
	FormEncoded bool
}

// Response is what execute() hands back: the status, headers, and the raw
// (charset-decoded) body. JSON is non-nil when ParseJSON was set and
// decoding succeeded, and is an empty map for any 204 response.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
	JSON    map[string]any
}

// Executor runs Requests over a shared *http.Client.
type Executor struct {
	Client *http.Client
}

// NewExecutor returns an Executor with the given client, or a sane default
// client when client is nil.
func NewExecutor(client *http.Client) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	return &Executor{Client: client}
}

// Execute performs req and returns its Response, or a *types.Error when the
// call itself could not be completed or the body could not be interpreted.
func (e *Executor) Execute(ctx context.Context, req Request) (*Response, error) {
	fullURL := req.URL
	if len(req.Query) > 0 {
		u, err := url.Parse(req.URL)
		if err != nil {
			return nil, &types.Error{Kind: types.InvalidValue, Message: err.Error()}
		}
		q := u.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		fullURL = u.String()
	}

	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, bodyReader)
	if err != nil {
		return nil, &types.Error{Kind: types.InvalidValue, Message: err.Error()}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.FormEncoded {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := e.Client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
			return nil, &types.Error{Kind: types.Network, Message: "request cancelled", Retriable: false, Meta: map[string]any{"cancelled": true}}
		}
		return nil, &types.Error{Kind: types.Network, Message: err.Error(), Retriable: true}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.Error{Kind: types.Network, Message: err.Error(), Retriable: true}
	}

	decoded, err := decodeCharset(raw, req.Charset)
	if err != nil {
		return nil, &types.Error{Kind: types.InvalidResponse, Message: err.Error(), HTTPStatus: resp.StatusCode}
	}

	out := &Response{Status: resp.StatusCode, Headers: resp.Header, Body: decoded}

	if resp.StatusCode == http.StatusNoContent {
		out.JSON = map[string]any{}
		return out, nil
	}

	if req.ParseJSON {
		var parsed map[string]any
		if jsonErr := json.Unmarshal(decoded, &parsed); jsonErr != nil {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil, &types.Error{
					Kind:       types.InvalidResponse,
					Message:    "could not parse JSON response: " + jsonErr.Error(),
					HTTPStatus: resp.StatusCode,
					Meta:       map[string]any{"rawBody": string(decoded)},
				}
			}
			if resp.StatusCode >= 400 {
				return nil, &types.Error{
					Kind:       types.HttpError,
					Message:    strings.TrimSpace(string(decoded)),
					HTTPStatus: resp.StatusCode,
					Retriable:  resp.StatusCode == 408 || resp.StatusCode == 429 || resp.StatusCode >= 500,
				}
			}
			return out, nil
		}
		out.JSON = parsed
		return out, nil
	}

	if resp.StatusCode >= 400 {
		return nil, &types.Error{
			Kind:       types.HttpError,
			Message:    strings.TrimSpace(string(decoded)),
			HTTPStatus: resp.StatusCode,
			Retriable:  resp.StatusCode == 408 || resp.StatusCode == 429 || resp.StatusCode >= 500,
		}
	}

	return out, nil
}

// decodeCharset transcodes raw into UTF-8 per the requested charset.
// West.cn answers in GBK; every other vendor is already UTF-8.
func decodeCharset(raw []byte, charset Charset) ([]byte, error) {
	if charset != CharsetGBK {
		return raw, nil
	}
	reader := transform.NewReader(bytes.NewReader(raw), simplifiedchinese.GBK.NewDecoder())
	return io.ReadAll(reader)
}

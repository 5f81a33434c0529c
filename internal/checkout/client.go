package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// httpDoer is the subset of http.Client the REST clients need.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const maxClientRespBytes = 1 << 20

// RESTCardClient creates card checkout sessions over the processor's JSON
// API. No vendor SDK is involved; the endpoint base URL and bearer secret
// are injected, which also lets tests point it at a local server.
type RESTCardClient struct {
	base   string
	secret string
	http   httpDoer
}

// NewRESTCardClient creates a card client for the given API base URL.
func NewRESTCardClient(base, secret string, client *http.Client) *RESTCardClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &RESTCardClient{base: base, secret: secret, http: client}
}

// CreateSession POSTs the session payload and returns the created session id.
func (c *RESTCardClient) CreateSession(ctx context.Context, params CardSessionParams) (string, error) {
	body, err := postJSON(ctx, c.http, c.base+"/v1/checkout/sessions", c.secret, params)
	if err != nil {
		return "", err
	}

	id, err := readStrField(body, "id")
	if err != nil {
		return "", errors.Wrap(err, "decode session response")
	}
	return id, nil
}

// RESTWalletClient creates wallet orders over the processor's JSON API.
type RESTWalletClient struct {
	base   string
	secret string
	http   httpDoer
}

// NewRESTWalletClient creates a wallet client for the given API base URL.
func NewRESTWalletClient(base, secret string, client *http.Client) *RESTWalletClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &RESTWalletClient{base: base, secret: secret, http: client}
}

// CreateOrder POSTs the order payload and returns the order id plus the
// buyer approval link.
func (c *RESTWalletClient) CreateOrder(ctx context.Context, params WalletOrderParams) (string, string, error) {
	body, err := postJSON(ctx, c.http, c.base+"/v2/checkout/orders", c.secret, params)
	if err != nil {
		return "", "", err
	}

	var resp struct {
		ID    string `json:"id"`
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", errors.Wrap(err, "decode order response")
	}

	approveURL := ""
	for _, l := range resp.Links {
		if l.Rel == "approve" {
			approveURL = l.Href
			break
		}
	}
	return resp.ID, approveURL, nil
}

func postJSON(ctx context.Context, client httpDoer, url, secret string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "post")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxClientRespBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("provider returned %d: %s", resp.StatusCode, truncateForLog(body))
	}
	return body, nil
}

// readStrField extracts a single top-level string field from a JSON object
// without decoding the rest.
func readStrField(body []byte, field string) (string, error) {
	var out string
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != field {
			return d.Skip()
		}
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", errors.Errorf("response missing %q", field)
	}
	return out, nil
}

func truncateForLog(b []byte) string {
	const max = 256
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}

package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/sawpanic/noticerun/internal/fault"
	"github.com/sawpanic/noticerun/internal/gateway"
)

// AuthHeaders returns the headers that authenticate API calls.
func AuthHeaders(clientID, clientSecret string) http.Header {
	return http.Header{
		"X-Buildium-Client-Id":     {clientID},
		"X-Buildium-Client-Secret": {clientSecret},
	}
}

// Client speaks the property-management REST API through a Gateway.
type Client struct {
	gw       *gateway.Gateway
	base     string
	pageSize int
}

// New creates a Client rooted at baseURL.
func New(gw *gateway.Gateway, baseURL string, pageSize int) *Client {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Client{gw: gw, base: strings.TrimRight(baseURL, "/"), pageSize: pageSize}
}

// Gateway returns the underlying gateway.
func (c *Client) Gateway() *gateway.Gateway {
	return c.gw
}

func (c *Client) url(path string, query url.Values) string {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// get reads one JSON document into v. A non-2xx status is UpstreamRejected;
// an Unexpected body leaves v untouched.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, v any) error {
	res, err := c.gw.Fetch(ctx, http.MethodGet, c.url(path, query))
	if err != nil {
		return fault.New(fault.UpstreamRejected, op, err)
	}
	if res.Status < 200 || res.Status >= 300 {
		return fault.Status(op, res.Status, res.Body)
	}
	return res.Decode(v)
}

// list reads a JSON list. Single objects and {"Items": [...]} envelopes are
// normalized to a list; Unexpected bodies are an empty list.
func list[T any](ctx context.Context, c *Client, op, path string, query url.Values) ([]T, error) {
	res, err := c.gw.Fetch(ctx, http.MethodGet, c.url(path, query))
	if err != nil {
		return nil, fault.New(fault.UpstreamRejected, op, err)
	}
	if res.Status < 200 || res.Status >= 300 {
		return nil, fault.Status(op, res.Status, res.Body)
	}
	return decodeList[T](res)
}

// paged walks offset pagination until an empty page.
func paged[T any](ctx context.Context, c *Client, op, path string, query url.Values) ([]T, error) {
	var all []T
	for offset := 0; ; offset += c.pageSize {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("limit", strconv.Itoa(c.pageSize))
		q.Set("offset", strconv.Itoa(offset))

		page, err := list[T](ctx, c, op, path, q)
		if err != nil {
			return all, err
		}
		if len(page) == 0 {
			return all, nil
		}
		all = append(all, page...)
	}
}

// write sends a JSON body and requires one of the expected statuses.
func (c *Client) write(ctx context.Context, op, method, path string, body any, expect ...int) (*gateway.Response, error) {
	var (
		resp *gateway.Response
		err  error
	)
	if method == http.MethodPost {
		resp, err = c.gw.PostWithRetry(ctx, c.url(path, nil), body, 0)
	} else {
		resp, err = c.gw.Send(ctx, method, c.url(path, nil), body)
	}
	if err != nil {
		if fault.KindOf(err) != fault.Unknown {
			return nil, err
		}
		return nil, fault.New(fault.UpstreamRejected, op, err)
	}
	for _, s := range expect {
		if resp.Status == s {
			return resp, nil
		}
	}
	return resp, fault.Status(op, resp.Status, resp.Body)
}

func decodeList[T any](res gateway.Result) ([]T, error) {
	if res.Kind != gateway.Ok {
		return nil, nil
	}
	if res.IsArray() {
		var out []T
		if err := json.Unmarshal(res.Body, &out); err != nil {
			return nil, fault.New(fault.MalformedData, "decode list", err)
		}
		return out, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(res.Body, &obj); err != nil {
		return nil, fault.New(fault.MalformedData, "decode list", err)
	}
	if len(obj) == 0 {
		return nil, nil
	}
	if raw, ok := firstRaw(obj, "Items", "items", "Data", "data"); ok {
		var out []T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fault.New(fault.MalformedData, "decode list", err)
		}
		return out, nil
	}
	var one T
	if err := json.Unmarshal(res.Body, &one); err != nil {
		return nil, fault.New(fault.MalformedData, "decode list", err)
	}
	return []T{one}, nil
}

func pathf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

// internal/remote/client.go
//
// HTTP client for an atlas served by another process (see atlas.Routes).
// Implements game.Remote over fasthttp. Every call is bounded by the client
// timeout or the context deadline, whichever comes first.
//
// Error mapping:
//   - 404              → game.ErrNotFound
//   - transport / 5xx  → game.ErrRemoteUnavailable

package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/robalobadob/fugitive/internal/game"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 3 * time.Second

// Client talks to a remote atlas.
type Client struct {
	base    string
	timeout time.Duration
	hc      *fasthttp.Client
}

var _ game.Remote = (*Client)(nil)

// New returns a Client for the atlas mounted at baseURL (e.g. http://host:5175/atlas).
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		hc: &fasthttp.Client{
			Name:            "fugitive-remote",
			ReadTimeout:     timeout,
			WriteTimeout:    timeout,
			MaxConnsPerHost: 64,
		},
	}
}

// get issues GET base+path and decodes a 200 body into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.base + path)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.hc.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("GET %s: %v: %w", path, err, game.ErrRemoteUnavailable)
	}

	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusNotFound:
		return fmt.Errorf("GET %s: %w", path, game.ErrNotFound)
	case status != fasthttp.StatusOK:
		return fmt.Errorf("GET %s: status %d: %w", path, status, game.ErrRemoteUnavailable)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %v: %w", path, err, game.ErrRemoteUnavailable)
	}
	return nil
}

func seg(s string) string { return url.PathEscape(strings.ToLower(strings.TrimSpace(s))) }

func (c *Client) FirstHint(ctx context.Context, country string) (string, error) {
	var body struct {
		Hint string `json:"first_hint"`
	}
	if err := c.get(ctx, "/fetchfirst/"+seg(country), &body); err != nil {
		return "", err
	}
	return body.Hint, nil
}

func (c *Client) SecondHint(ctx context.Context, country string) (string, error) {
	var body struct {
		Hint string `json:"second_hint"`
	}
	if err := c.get(ctx, "/fetchsecond/"+seg(country), &body); err != nil {
		return "", err
	}
	return body.Hint, nil
}

func (c *Client) CountryExists(ctx context.Context, name string) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, nil
	}
	var body struct {
		Exists bool `json:"exists"`
	}
	if err := c.get(ctx, "/checkcountry/"+seg(name), &body); err != nil {
		return false, err
	}
	return body.Exists, nil
}

func (c *Client) TravelPenalty(ctx context.Context, from, to string, leg int) (int, error) {
	var body struct {
		Distance int `json:"distanceKm"`
	}
	path := "/penaltycalculator/" + seg(from) + "/" + seg(to) + "/" + strconv.Itoa(leg)
	if err := c.get(ctx, path, &body); err != nil {
		return 0, err
	}
	return body.Distance, nil
}

func (c *Client) LocalTime(ctx context.Context, country string) (game.LocalTime, error) {
	var lt game.LocalTime
	if err := c.get(ctx, "/localtime/"+seg(country), &lt); err != nil {
		return game.LocalTime{}, err
	}
	return lt, nil
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	fspath "path"
	"time"

	"github.com/andydunstall/meshmaster/server/api"
	"github.com/andydunstall/meshmaster/server/cluster"
)

// Client sends requests to a nodes API server.
type Client struct {
	httpClient *http.Client

	url *url.URL
}

func NewClient(url *url.URL) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Second * 15,
		},
		url: url,
	}
}

// Publish registers a publisher of the topic on the node and returns the
// known publishers of the topic.
func (c *Client) Publish(ctx context.Context, topic string, port int) ([]cluster.Locator, error) {
	var resp api.PublishersResponse
	if err := c.do(ctx, http.MethodPost, "/v1/publishers", nil, &api.PublishRequest{
		Topic: topic,
		Port:  port,
	}, &resp); err != nil {
		return nil, err
	}
	return resp.Publishers, nil
}

func (c *Client) Unpublish(ctx context.Context, topic string, port int) ([]cluster.Locator, error) {
	var resp api.PublishersResponse
	if err := c.do(ctx, http.MethodDelete, "/v1/publishers", nil, &api.PublishRequest{
		Topic: topic,
		Port:  port,
	}, &resp); err != nil {
		return nil, err
	}
	return resp.Publishers, nil
}

// Lookup returns the known publishers of the topic across the cluster.
func (c *Client) Lookup(ctx context.Context, topic string) ([]cluster.Locator, error) {
	query := url.Values{}
	query.Set("topic", topic)

	var resp api.PublishersResponse
	if err := c.do(ctx, http.MethodGet, "/v1/publishers", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Publishers, nil
}

func (c *Client) Subscribe(ctx context.Context, topic string) ([]cluster.Locator, error) {
	var resp api.PublishersResponse
	if err := c.do(ctx, http.MethodPost, "/v1/subscribers", nil, &api.SubscribeRequest{
		Topic: topic,
	}, &resp); err != nil {
		return nil, err
	}
	return resp.Publishers, nil
}

// Unsubscribe unregisters a subscriber of the topic.
func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	return c.do(ctx, http.MethodDelete, "/v1/subscribers", nil, &api.SubscribeRequest{
		Topic: topic,
	}, nil)
}

func (c *Client) PID(ctx context.Context) (int, error) {
	var resp api.PIDResponse
	if err := c.do(ctx, http.MethodGet, "/v1/pid", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.PID, nil
}

func (c *Client) URI(ctx context.Context) (string, error) {
	var resp api.URIResponse
	if err := c.do(ctx, http.MethodGet, "/v1/uri", nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.URI, nil
}

// Shutdown requests the node shuts down.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/shutdown", nil, nil, nil)
}

func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	body any,
	v any,
) error {
	u := new(url.URL)
	*u = *c.url
	u.Path = fspath.Join(u.Path, path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("request: bad status: %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("request: bad status: %d", resp.StatusCode)
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

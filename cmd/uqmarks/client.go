package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/uqmarks/uqmarks/internal/config"
)

// apiClient talks to a running uqmarks server.
type apiClient struct {
	http *resty.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return newClientFor("http://" + localAddr(cfg)), nil
}

func newClientFor(baseURL string) *apiClient {
	return &apiClient{
		http: resty.New().SetBaseURL(baseURL).SetTimeout(30 * time.Second),
	}
}

// localAddr is where the server can be reached from this machine.
func localAddr(cfg config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, cfg.Server.Port)
}

// get performs a GET and returns the raw response. Only transport failures
// are errors; HTTP error statuses are left to the caller.
func (c *apiClient) get(ctx context.Context, path string, query map[string]string) (*resty.Response, error) {
	res, err := c.http.R().SetContext(ctx).SetQueryParams(query).Get(path)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is uqmarks running? (%w)", err)
	}
	return res, nil
}

func decodeJSON(res *resty.Response, v any) error {
	if res.IsError() {
		return fmt.Errorf("server returned %d: %s", res.StatusCode(), res.String())
	}
	return json.Unmarshal(res.Body(), v)
}

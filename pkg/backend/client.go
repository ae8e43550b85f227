// Package backend adapts the Supabase client libraries (auth, row API and
// object storage) to the session and todo packages, and reads JWT claims.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/postgrest-go"
	storage "github.com/supabase-community/storage-go"
)

const (
	authPath    = "/auth/v1"
	restPath    = "/rest/v1"
	storagePath = "/storage/v1"
)

type ClientOptions struct {
	URL     string
	AnonKey string
	// HTTPClient defaults to a client with a 30s timeout. It carries auth
	// calls; the row and storage libraries use their own transport.
	HTTPClient *http.Client
}

type Client struct {
	baseURL *url.URL
	anonKey string
	http    *http.Client
	auth    gotrue.Client
}

func New(options ClientOptions) (*Client, error) {
	if options.AnonKey == "" {
		return nil, errors.New("backend: anon key is required")
	}

	baseURL, err := url.Parse(strings.TrimRight(options.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: invalid url: %w", err)
	}

	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("backend: invalid url scheme %q", baseURL.Scheme)
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL: baseURL,
		anonKey: options.AnonKey,
		http:    httpClient,
		auth:    gotrue.New("", options.AnonKey).WithCustomGoTrueURL(baseURL.String() + authPath),
	}, nil
}

func (c *Client) URL() string {
	return c.baseURL.String()
}

// Rows is a row API client acting as token, or as the anonymous role when
// token is empty. The library keeps headers on the client, so every call
// gets its own.
func (c *Client) Rows(token string) *postgrest.Client {
	return postgrest.NewClient(c.baseURL.String()+restPath, "public", map[string]string{
		"apikey":        c.anonKey,
		"Authorization": "Bearer " + c.bearer(token),
	})
}

// Storage is an object storage client acting as token.
func (c *Client) Storage(token string) *storage.Client {
	return storage.NewClient(c.baseURL.String()+storagePath, c.bearer(token), map[string]string{
		"apikey": c.anonKey,
	})
}

// PublicURL is the stable address of an object in a public bucket.
func (c *Client) PublicURL(bucket string, path string) string {
	return c.Storage("").GetPublicUrl(bucket, path).SignedURL
}

func (c *Client) bearer(token string) string {
	if token == "" {
		return c.anonKey
	}

	return token
}

// withContext returns an auth client whose requests are bound to ctx and
// carry query on top of what the library sets.
func (c *Client) withContext(ctx context.Context, query url.Values) gotrue.Client {
	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return c.auth.WithClient(http.Client{
		Timeout:   c.http.Timeout,
		Transport: &transport{ctx: ctx, base: base, query: query},
	})
}

type transport struct {
	ctx   context.Context
	base  http.RoundTripper
	query url.Values
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(t.ctx)

	if len(t.query) > 0 {
		values := req.URL.Query()
		for key, value := range t.query {
			values[key] = value
		}
		req.URL.RawQuery = values.Encode()
	}

	return t.base.RoundTrip(req)
}

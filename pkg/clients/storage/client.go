// Package storage implements the log repository against a remote storage
// service speaking JSON over REST. The HTTP client retries with a constant
// backoff and traces every request through the opentracing transport.
package storage

import (
	"net/http"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/opentracing-contrib/go-stdlib/nethttp"
)

const (
	backoffInterval       = 500 * time.Millisecond
	maximumJitterInterval = 50 * time.Millisecond
)

// Config holds the connection settings for the storage service.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// Client is a log repository backed by the remote storage service.
type Client struct {
	baseURL string
	http    *httpclient.Client
	*publisher
}

// NewClient builds a storage client with retries and a traced transport.
func NewClient(cfg Config) *Client {
	retrier := heimdall.NewRetrier(heimdall.NewConstantBackoff(backoffInterval, maximumJitterInterval))

	httpClient := httpclient.NewClient(
		httpclient.WithHTTPTimeout(cfg.Timeout),
		httpclient.WithRetrier(retrier),
		httpclient.WithRetryCount(cfg.RetryCount),
		httpclient.WithHTTPClient(&http.Client{
			Timeout:   cfg.Timeout,
			Transport: &nethttp.Transport{},
		}),
	)

	return &Client{
		baseURL:   cfg.BaseURL,
		http:      httpClient,
		publisher: newPublisher(),
	}
}

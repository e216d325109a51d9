// Package client talks to a clusterd server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"clusterfs/pkg/log"
	"clusterfs/pkg/models"
)

const (
	defaultRetryMax     = 3
	defaultRetryWaitMin = 100 * time.Millisecond
	defaultRetryWaitMax = 2 * time.Second
	defaultTimeout      = 60 * time.Second
)

// ErrServer is wrapped by every non-2xx response.
var ErrServer = errors.New("server error")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrServer, e.StatusCode, e.Message)
}

// Is matches ErrServer.
func (e *StatusError) Is(target error) bool {
	return target == ErrServer
}

// Client is a clusterd API client.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	timeout time.Duration
}

// New creates a client for the server at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    CreateRetryableClient(defaultRetryMax, defaultRetryWaitMin, defaultRetryWaitMax),
		timeout: defaultTimeout,
	}
}

// CreateRetryableClient creates a retryable HTTP client that only retries
// requests that received no response.
func CreateRetryableClient(retryMax int, retryWaitMin, retryWaitMax time.Duration) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = retryWaitMin
	client.RetryWaitMax = retryWaitMax
	client.Logger = nil // Disable retryablehttp logging
	client.CheckRetry = customRetryPolicy
	return client
}

// customRetryPolicy only retries on connection/timeout errors, not HTTP status errors.
func customRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	// Do not retry if context is cancelled
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	// A response of any status is final
	if resp != nil {
		return false, nil
	}

	if err != nil {
		return true, nil //nolint:nilerr // retryablehttp reports the error after the last attempt
	}

	return false, nil
}

// do sends req and decodes a JSON response into out.
func (c *Client) do(req *retryablehttp.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var failure models.ErrorResponse
		message := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &failure) == nil && failure.Error != "" {
			message = failure.Error
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*retryablehttp.Request, error) {
	return retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
}

// Document fetches a document by id.
func (c *Client) Document(ctx context.Context, documentID int64) (*models.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/documents/"+strconv.FormatInt(documentID, 10), nil)
	if err != nil {
		return nil, err
	}

	var document models.Document
	if err := c.do(req, &document); err != nil {
		return nil, err
	}
	return &document, nil
}

// DeleteDocument removes a document and its file.
func (c *Client) DeleteDocument(ctx context.Context, documentID int64) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodDelete, "/documents/"+strconv.FormatInt(documentID, 10), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// AllocateOptions override the server-side storage settings. Zero values keep
// the server defaults.
type AllocateOptions struct {
	Depth    int
	MaxItems int
	Hex      *bool
}

// Allocate asks the server for the next slot of bucket.
func (c *Client) Allocate(ctx context.Context, bucket string, opts AllocateOptions) (*models.AllocationResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := url.Values{}
	if opts.Depth > 0 {
		query.Set("depth", strconv.Itoa(opts.Depth))
	}
	if opts.MaxItems > 0 {
		query.Set("max_items", strconv.Itoa(opts.MaxItems))
	}
	if opts.Hex != nil {
		query.Set("hex", strconv.FormatBool(*opts.Hex))
	}

	path := "/clusters/" + url.PathEscape(bucket) + "/allocate"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}

	var allocation models.AllocationResponse
	if err := c.do(req, &allocation); err != nil {
		return nil, err
	}
	return &allocation, nil
}

// Cluster fetches the counter of bucket.
func (c *Client) Cluster(ctx context.Context, bucket string) (*models.ClusterState, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/clusters/"+url.PathEscape(bucket), nil)
	if err != nil {
		return nil, err
	}

	var state models.ClusterState
	if err := c.do(req, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

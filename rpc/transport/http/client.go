package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/phantom/rpc/common"
	"github.com/ValentinKolb/phantom/rpc/transport"
)

func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	conn    atomic.Pointer[httpConnection] // nil until Connect and after Close
	counter atomic.Uint32
}

// httpConnection is the state set up by Connect. It is replaced as a whole,
// never modified.
type httpConnection struct {
	serverURLs []*url.URL
	client     *http.Client
	retryCount int
	timeout    time.Duration
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	parsedURLs := make([]*url.URL, len(config.Transport.Endpoints))
	for i, server := range config.Transport.Endpoints {
		if !strings.Contains(server, "://") {
			server = "http://" + server
		}
		parsedURL, err := url.Parse(server)
		if err != nil {
			return err
		}
		parsedURLs[i] = parsedURL
	}

	old := t.conn.Swap(&httpConnection{
		serverURLs: parsedURLs,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: max(10, config.Transport.ConnectionsPerEndpoint),
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retryCount: max(1, config.Transport.RetryCount),
		timeout:    config.Timeout,
	})
	if old != nil {
		old.client.CloseIdleConnections()
	}

	return nil
}

func (t *httpClientTransport) Send(shardId uint64, req []byte) (resp []byte, err error) {
	c := t.conn.Load()
	if c == nil {
		return nil, fmt.Errorf("http transport not initialized")
	}

	// the timeout bounds all attempts together
	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var lastErr error
	for i := 0; i < c.retryCount; i++ {
		// Select the next server via round-robin
		idx := t.counter.Add(1) % uint32(len(c.serverURLs))
		requestURL := c.serverURLs[idx].JoinPath(fmt.Sprintf("%d", shardId))

		resp, err := c.post(ctx, requestURL.String(), req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		Logger.Debugf("Request attempt %d/%d to %s failed: %v", i+1, c.retryCount, requestURL, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (t *httpClientTransport) Close() error {
	if c := t.conn.Swap(nil); c != nil {
		c.client.CloseIdleConnections()
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// post sends a single request; the body reader is fresh for every attempt
func (c *httpConnection) post(ctx context.Context, requestURL string, req []byte) ([]byte, error) {
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(req))
	if err != nil {
		return nil, err
	}
	httpRequest.Header.Set("Content-Type", "application/octet-stream")

	httpResponse, err := c.client.Do(httpRequest)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := httpResponse.Body.Close(); err != nil {
			Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	if httpResponse.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http error: %s", httpResponse.Status)
	}

	return io.ReadAll(httpResponse.Body)
}

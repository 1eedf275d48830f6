package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout is the timeout of the client returned by NewHTTPClient when
// none is given.
const DefaultTimeout = 30 * time.Second

// NewHTTPClient returns a client with the given request timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// NewHTTPRequest function builds and performs an http call
// @param method <string>: http method, one of GET and POST
// @param url <string>: URL http to call
// @return <int>, <[]byte>, error: status code and body of the response
func NewHTTPRequest(
	ctx context.Context,
	client *http.Client,
	method, url, bodyString string,
	header map[string]string,
) (int, []byte, error) {
	var body io.Reader
	switch method {
	case http.MethodGet:
	case http.MethodPost:
		body = strings.NewReader(bodyString)
	default:
		return 0, nil, fmt.Errorf("verb not supported %s", method)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	for key, value := range header {
		req.Header.Set(key, value)
	}

	rs, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer rs.Body.Close()

	bodyBytes, err := io.ReadAll(rs.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to parse response body: %w", err)
	}
	return rs.StatusCode, bodyBytes, nil
}

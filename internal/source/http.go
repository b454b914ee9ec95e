package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// DefaultUserAgent is the user agent string used for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// DefaultClient is used when a strategy is built without a client. The
// Fetcher's context deadline is the effective per-request bound.
var DefaultClient = &http.Client{
	Timeout: 30 * time.Second,
}

// maxBody caps how much of a listing page is read.
const maxBody = 8 << 20

// doGet performs a GET request and returns the body. Non-2xx statuses are
// returned as *HTTPError. The caller closes the body.
func doGet(ctx context.Context, client *http.Client, rawURL, userAgent string, accept string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")

	if client == nil {
		client = DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("HTTP GET %s: %w", rawURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, "", &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// utf8Reader converts an HTML body to UTF-8 using the Content-Type header
// and <meta charset> sniffing. Legacy Korean pages still ship EUC-KR.
func utf8Reader(body io.Reader, contentType string) (io.Reader, error) {
	r, err := charset.NewReader(io.LimitReader(body, maxBody), contentType)
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}
	return r, nil
}

// queryURL substitutes the escaped keyword into a URL template.
func queryURL(template, keyword string) string {
	return strings.Replace(template, "%s", url.QueryEscape(keyword), 1)
}

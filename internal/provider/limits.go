package provider

import (
	"context"
	"net/http"
)

// ClampMaxTokens resolves the output token budget for one call. An unset
// request uses the ceiling; a request above the ceiling is clamped to it.
func ClampMaxTokens(requested, ceiling int) int {
	if ceiling <= 0 {
		return requested
	}
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}

// ProbeGET issues a bounded GET and reports whether it returned 2xx. Any
// failure, including a context deadline, is reported as false.
func ProbeGET(ctx context.Context, client *http.Client, url string, header http.Header) bool {
	ctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

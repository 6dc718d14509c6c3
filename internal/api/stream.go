package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rickgao/price-streamer/internal/model"
)

// OpenPriceStream opens the streaming pricing endpoint for the given
// instruments and returns the response body. The caller reads NDJSON lines
// from it and must close it. Cancelling ctx aborts the stream.
func (c *Client) OpenPriceStream(ctx context.Context, instruments []string) (io.ReadCloser, error) {
	if err := c.creds.Validate(); err != nil {
		return nil, err
	}
	if len(instruments) == 0 {
		return nil, fmt.Errorf("at least one instrument is required")
	}

	params := url.Values{}
	params.Set("instruments", strings.Join(instruments, ","))
	params.Set("snapshot", "true")

	fullURL := c.streamURL + "/v3/accounts/" + url.PathEscape(c.creds.AccountID) +
		"/pricing/stream?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	c.setHeaders(req, "application/stream+json")

	c.logger.Debug("opening price stream", "instruments", len(instruments))

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w: %w", model.ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, newAPIError(resp.StatusCode, body)
	}

	return resp.Body, nil
}

package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// GetCandles fetches historical candles for one instrument.
func (c *Client) GetCandles(ctx context.Context, instrument string, opts CandlesOptions) ([]Candle, error) {
	if instrument == "" {
		return nil, fmt.Errorf("instrument is required")
	}

	params := url.Values{}
	if opts.Count > 0 {
		params.Set("count", strconv.Itoa(opts.Count))
	}
	if opts.Granularity != "" {
		params.Set("granularity", opts.Granularity)
	}
	if opts.Price != "" {
		params.Set("price", opts.Price)
	}

	path := "/v3/instruments/" + url.PathEscape(instrument) + "/candles"

	var resp CandlesResponse
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("get candles %s: %w", instrument, err)
	}

	return resp.Candles, nil
}

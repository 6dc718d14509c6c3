package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rickgao/price-streamer/internal/model"
)

// GetInstruments fetches the tradeable instruments for the configured account.
func (c *Client) GetInstruments(ctx context.Context) ([]APIInstrument, error) {
	if err := c.creds.Validate(); err != nil {
		return nil, err
	}

	path := "/v3/accounts/" + url.PathEscape(c.creds.AccountID) + "/instruments"

	var resp InstrumentsResponse
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get instruments: %w", err)
	}

	return resp.Instruments, nil
}

// InstrumentSpecs fetches instrument metadata as model specs.
func (c *Client) InstrumentSpecs(ctx context.Context) ([]model.InstrumentSpec, error) {
	instruments, err := c.GetInstruments(ctx)
	if err != nil {
		return nil, err
	}

	specs := make([]model.InstrumentSpec, 0, len(instruments))
	for i := range instruments {
		specs = append(specs, instruments[i].ToModel())
	}

	return specs, nil
}

// ToModel converts an APIInstrument to a model.InstrumentSpec. A zero pip
// location falls back to the default pip scale.
func (a *APIInstrument) ToModel() model.InstrumentSpec {
	spec := model.DefaultSpec(a.Name)
	spec.DisplayPrecision = a.DisplayPrecision
	if a.PipLocation != 0 {
		spec.PipScale = model.PipScaleFromLocation(a.PipLocation)
	}
	return spec
}

// Package auth provides quote provider credentials and bearer-token request signing.
package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/rickgao/price-streamer/internal/model"
)

// Credentials holds the bearer token and account for one broker.
type Credentials struct {
	APIKey    string `json:"api_key"`    // Personal access token
	AccountID string `json:"account_id"` // Account used for instrument and stream endpoints
}

// placeholder values shipped in example secrets files.
var placeholders = map[string]bool{
	"your_live_api_key_here":    true,
	"your_live_account_id_here": true,
}

// LoadCredentials reads a secrets JSON file keyed by broker name:
//
//	{"oanda": {"api_key": "...", "account_id": "..."}}
func LoadCredentials(path, broker string) (*Credentials, error) {
	if path == "" {
		return nil, fmt.Errorf("credentials file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	var byBroker map[string]Credentials
	if err := json.Unmarshal(data, &byBroker); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}

	creds, ok := byBroker[broker]
	if !ok {
		return nil, fmt.Errorf("no credentials for broker %q: %w", broker, model.ErrAuth)
	}

	if err := creds.Validate(); err != nil {
		return nil, err
	}

	return &creds, nil
}

// Validate reports ErrAuth when the token or account is missing or still a
// placeholder. Retrying without new credentials cannot succeed.
func (c *Credentials) Validate() error {
	if c == nil || c.APIKey == "" || placeholders[c.APIKey] {
		return fmt.Errorf("api key is required: %w", model.ErrAuth)
	}
	if c.AccountID == "" || placeholders[c.AccountID] {
		return fmt.Errorf("account id is required: %w", model.ErrAuth)
	}
	return nil
}

// Apply sets the Authorization header on req.
func (c *Credentials) Apply(req *http.Request) {
	if c == nil || c.APIKey == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
}

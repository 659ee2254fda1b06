// Package vault loads exchange credentials from HashiCorp Vault (KV v2).
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"binance-ats/config"
	"binance-ats/internal/logging"

	"github.com/hashicorp/vault/api"
)

// ErrNoCredentials is returned when neither Vault nor the config hold keys.
var ErrNoCredentials = errors.New("no exchange credentials configured")

// Credentials are the exchange API key pair.
type Credentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	Source    string `json:"source"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	logger *logging.Logger

	mu     sync.RWMutex
	cached *Credentials
}

// NewClient creates a new Vault client. A disabled config yields a client
// that only serves the config fallback.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	c := &Client{config: cfg, logger: logging.WithComponent("vault")}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	c.client = client
	return c, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Credentials returns the exchange keys. With Vault enabled they are read
// from <mount>/data/<secret_path> and cached; otherwise the binance config
// section (and therefore BINANCE_API_KEY/BINANCE_API_SECRET) is used.
func (c *Client) Credentials(ctx context.Context, fallback config.BinanceConfig) (Credentials, error) {
	if !c.config.Enabled {
		if fallback.APIKey == "" || fallback.SecretKey == "" {
			return Credentials{}, ErrNoCredentials
		}
		return Credentials{APIKey: fallback.APIKey, SecretKey: fallback.SecretKey, Source: "config"}, nil
	}

	c.mu.RLock()
	if c.cached != nil {
		creds := *c.cached
		c.mu.RUnlock()
		return creds, nil
	}
	c.mu.RUnlock()

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return Credentials{}, fmt.Errorf("%w: %s is empty", ErrNoCredentials, c.secretPath())
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return Credentials{}, fmt.Errorf("invalid secret format at %s", c.secretPath())
	}

	creds := Credentials{
		APIKey:    getString(data, "api_key"),
		SecretKey: getString(data, "secret_key"),
		Source:    "vault",
	}
	if creds.APIKey == "" || creds.SecretKey == "" {
		return Credentials{}, fmt.Errorf("%w: api_key or secret_key missing in vault", ErrNoCredentials)
	}

	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()

	c.logger.Info("exchange credentials loaded from vault", "path", c.secretPath())
	return creds, nil
}

// StoreCredentials writes the key pair to Vault and refreshes the cache.
func (c *Client) StoreCredentials(ctx context.Context, creds Credentials) error {
	if !c.config.Enabled {
		return fmt.Errorf("vault is disabled")
	}

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    creds.APIKey,
			"secret_key": creds.SecretKey,
		},
	}
	if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(), secretData); err != nil {
		return fmt.Errorf("failed to store credentials in vault: %w", err)
	}

	creds.Source = "vault"
	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()
	return nil
}

// ClearCache drops the cached credentials so the next call rereads Vault.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

// secretPath returns the KV v2 data path of the credentials
func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

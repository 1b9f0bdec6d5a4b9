package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("WHATSAPP_STORE_NUMBER", "9876543210")

	cfg := &Config{}
	require.NoError(t, env.Parse(cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverMongo, cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Checkout.RateLimit)
	assert.Equal(t, time.Minute, cfg.Checkout.RateWindow)
	assert.Equal(t, 10, cfg.Checkout.OrderIDDigits)
	assert.Equal(t, "https://wa.me", cfg.WhatsApp.BaseURL)
	assert.Equal(t, "+91", cfg.WhatsApp.CountryCode)
	assert.Equal(t, "₹", cfg.WhatsApp.CurrencySymbol)
	assert.Equal(t, 1.0, cfg.Geocoder.RPS)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Store:    StoreConfig{Driver: DriverPostgres},
			Checkout: CheckoutConfig{RateLimit: 5, RateWindow: time.Minute, RateLimitBackend: "memory", OrderIDDigits: 10},
			WhatsApp: WhatsAppConfig{StoreNumber: "9876543210"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, wantErr: "STORE_DRIVER"},
		{name: "unknown limiter backend", mutate: func(c *Config) { c.Checkout.RateLimitBackend = "etcd" }, wantErr: "RATE_LIMIT_BACKEND"},
		{name: "zero limit", mutate: func(c *Config) { c.Checkout.RateLimit = 0 }, wantErr: "ORDER_RATE_LIMIT"},
		{name: "short order id", mutate: func(c *Config) { c.Checkout.OrderIDDigits = 3 }, wantErr: "ORDER_ID_DIGITS"},
		{name: "missing store number", mutate: func(c *Config) { c.WhatsApp.StoreNumber = "" }, wantErr: "WHATSAPP_STORE_NUMBER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDBConfig_DSN(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "shop", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5433/shop?sslmode=disable", c.DSN())
}

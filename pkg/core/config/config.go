/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package config reads gateway configuration from an optional YAML file with
// environment variable overrides. All keys have defaults so that a gateway can
// be constructed from an empty configuration in tests.
package config

import (
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	cmdRoot = "SETTLEGW"
)

// Config is the typed configuration surface of the gateway
type Config struct {
	Channel     ChannelConfig     `mapstructure:"channel"`
	Pool        PoolConfig        `mapstructure:"pool"`
	Invocation  InvocationConfig  `mapstructure:"invocation"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Identity    IdentityConfig    `mapstructure:"identity"`
	Peers       []PeerConfig      `mapstructure:"peers"`
	Tenants     []TenantConfig    `mapstructure:"tenants"`
	Orderer     OrdererConfig     `mapstructure:"orderer"`
	TLS         TLSConfig         `mapstructure:"tls"`
	Listen      string            `mapstructure:"listen"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// ChannelConfig addresses the ledger channel and chaincode that settlement
// operations are routed to
type ChannelConfig struct {
	Name      string `mapstructure:"name"`
	Chaincode string `mapstructure:"chaincode"`
}

// PoolConfig bounds the connection pool
type PoolConfig struct {
	MinSize               int           `mapstructure:"minSize"`
	MaxSize               int           `mapstructure:"maxSize"`
	AcquireTimeout        time.Duration `mapstructure:"acquireTimeout"`
	ProbeInterval         time.Duration `mapstructure:"probeInterval"`
	ProbeFailureThreshold int           `mapstructure:"probeFailureThreshold"`
}

// InvocationConfig holds per-invocation defaults
type InvocationConfig struct {
	DefaultTimeout time.Duration `mapstructure:"defaultTimeout"`
}

// RetryConfig holds the retry budget for transient errors
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"maxAttempts"`
	InitialBackoff time.Duration `mapstructure:"initialBackoff"`
	MaxBackoff     time.Duration `mapstructure:"maxBackoff"`
	BackoffFactor  float64       `mapstructure:"backoffFactor"`
}

// IdempotencyConfig bounds the retention of idempotency records
type IdempotencyConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
}

// IdentityConfig controls identity caching
type IdentityConfig struct {
	CacheTTL time.Duration `mapstructure:"cacheTTL"`
}

// PeerConfig addresses one endorsing peer
type PeerConfig struct {
	URL string `mapstructure:"url"`
}

// TenantConfig provisions one tenant's ledger credentials at startup. The
// signing key itself never enters the configuration; KeyRef names it in the
// external key store.
type TenantConfig struct {
	Tenant   string `mapstructure:"tenant"`
	MSPID    string `mapstructure:"mspId"`
	CertFile string `mapstructure:"certFile"`
	KeyRef   string `mapstructure:"keyRef"`
}

// OrdererConfig addresses the ordering service
type OrdererConfig struct {
	URL string `mapstructure:"url"`
}

// TLSConfig holds the client TLS material for peer and orderer connections
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CertFile           string `mapstructure:"certFile"`
	KeyFile            string `mapstructure:"keyFile"`
	CACertFile         string `mapstructure:"caCertFile"`
	ServerNameOverride string `mapstructure:"serverNameOverride"`
}

// MetricsConfig controls prometheus instrumentation
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func newViper() *viper.Viper {
	myViper := viper.New()
	myViper.SetEnvPrefix(cmdRoot)
	myViper.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	myViper.SetEnvKeyReplacer(replacer)
	setDefaults(myViper)
	return myViper
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("channel.name", "settlement")
	v.SetDefault("channel.chaincode", "settlementcc")
	v.SetDefault("pool.minSize", 2)
	v.SetDefault("pool.maxSize", 8)
	v.SetDefault("pool.acquireTimeout", 5*time.Second)
	v.SetDefault("pool.probeInterval", 30*time.Second)
	v.SetDefault("pool.probeFailureThreshold", 3)
	v.SetDefault("invocation.defaultTimeout", 30*time.Second)
	v.SetDefault("retry.maxAttempts", 5)
	v.SetDefault("retry.initialBackoff", 100*time.Millisecond)
	v.SetDefault("retry.maxBackoff", 10*time.Second)
	v.SetDefault("retry.backoffFactor", 2.0)
	v.SetDefault("idempotency.ttl", 24*time.Hour)
	v.SetDefault("idempotency.sweepInterval", time.Minute)
	v.SetDefault("identity.cacheTTL", 10*time.Minute)
	v.SetDefault("orderer.url", "localhost:7050")
	v.SetDefault("tls.enabled", false)
	v.SetDefault("listen", ":8440")
	v.SetDefault("metrics.enabled", true)
}

// FromFile reads the configuration from the given file, applying environment
// overrides and defaults
func FromFile(path string) (*Config, error) {
	myViper := newViper()
	myViper.SetConfigFile(path)

	err := myViper.ReadInConfig()
	if err != nil {
		return nil, errors.Wrapf(err, "loading config file failed: %s", path)
	}

	return fromBackend(myViper)
}

// FromEnv builds the configuration from defaults and environment overrides only
func FromEnv() (*Config, error) {
	return fromBackend(newViper())
}

func fromBackend(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, errors.WithMessage(err, "unmarshalling config failed")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Pool.MinSize < 0 || c.Pool.MaxSize <= 0 {
		return errors.Errorf("invalid pool sizes: min %d max %d", c.Pool.MinSize, c.Pool.MaxSize)
	}
	if c.Pool.MinSize > c.Pool.MaxSize {
		return errors.Errorf("pool minSize %d exceeds maxSize %d", c.Pool.MinSize, c.Pool.MaxSize)
	}
	if c.Retry.MaxAttempts < 0 {
		return errors.Errorf("invalid retry maxAttempts: %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BackoffFactor < 1 {
		return errors.Errorf("retry backoffFactor must be >= 1: %s", cast.ToString(c.Retry.BackoffFactor))
	}
	if c.Idempotency.TTL <= 0 {
		return errors.Errorf("idempotency ttl must be positive: %s", c.Idempotency.TTL)
	}
	return nil
}

// PeerURLs returns the configured peer addresses
func (c *Config) PeerURLs() []string {
	urls := make([]string, 0, len(c.Peers))
	for _, p := range c.Peers {
		urls = append(urls, p.URL)
	}
	return urls
}

// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/luxfi/vastplayer/pkg/log"
	"github.com/luxfi/vastplayer/pkg/metric"
	"github.com/luxfi/vastplayer/pkg/transport"
	"github.com/luxfi/vastplayer/pkg/vast"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "VASTPLAYER_"

// Config holds the player and tracking service settings.
type Config struct {
	// Resolution
	LoadTimeout      time.Duration `env:"LOAD_TIMEOUT"       envDefault:"10s"`
	MaxWrapperDepth  int           `env:"MAX_WRAPPER_DEPTH"  envDefault:"5"`
	MinDuration      time.Duration `env:"MIN_DURATION"       envDefault:"0s"`
	MaxDocumentBytes int64         `env:"MAX_DOCUMENT_BYTES" envDefault:"1048576"`
	UserAgent        string        `env:"USER_AGENT"         envDefault:"vastplayer/1.0"`

	// Media selection
	MIMETypes     []string `env:"MIME_TYPES"     envDefault:"video/mp4,video/webm,application/x-mpegURL" envSeparator:","`
	Deliveries    []string `env:"DELIVERIES"     envSeparator:","`
	DisplayWidth  int      `env:"DISPLAY_WIDTH"  envDefault:"1280"`
	DisplayHeight int      `env:"DISPLAY_HEIGHT" envDefault:"720"`
	MaxWidth      int      `env:"MAX_WIDTH"`
	MaxHeight     int      `env:"MAX_HEIGHT"`
	MaxBitrate    int      `env:"MAX_BITRATE"`

	// Tracking pixels
	DispatchWorkers int           `env:"DISPATCH_WORKERS" envDefault:"4"`
	DispatchQueue   int           `env:"DISPATCH_QUEUE"   envDefault:"256"`
	DispatchTimeout time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"5s"`

	// Service
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	HTTPAddr   string        `env:"HTTP_ADDR"   envDefault:":8080"`
	LogLevel   string        `env:"LOG_LEVEL"   envDefault:"info"`

	// AllowedOrigins lists the browser origins allowed to call the service
	// and subscribe to the monitor. Empty means same origin only.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads the configuration from VASTPLAYER_* environment variables.
func Load() (*Config, error) {
	return parse(env.Options{Prefix: EnvPrefix})
}

// Default returns the configuration with every default applied and no
// environment overrides.
func Default() *Config {
	cfg, err := parse(env.Options{
		Prefix:      EnvPrefix,
		Environment: map[string]string{},
	})
	if err != nil {
		panic(fmt.Sprintf("config defaults are invalid: %v", err))
	}
	return cfg
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.LoadTimeout <= 0 {
		errs = append(errs, errors.New("load timeout must be positive"))
	}
	if c.MaxWrapperDepth < 0 {
		errs = append(errs, errors.New("max wrapper depth must not be negative"))
	}
	if c.MinDuration < 0 {
		errs = append(errs, errors.New("min duration must not be negative"))
	}
	if c.MaxDocumentBytes <= 0 {
		errs = append(errs, errors.New("max document bytes must be positive"))
	}
	if c.DispatchWorkers <= 0 {
		errs = append(errs, errors.New("dispatch workers must be positive"))
	}
	if c.DispatchQueue <= 0 {
		errs = append(errs, errors.New("dispatch queue must be positive"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			continue
		}
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("allowed origin %q must be scheme://host", origin))
		}
	}
	return errors.Join(errs...)
}

// Capabilities returns the media selection constraints.
func (c *Config) Capabilities() vast.Capabilities {
	return vast.Capabilities{
		MIMETypes:     c.MIMETypes,
		Deliveries:    c.Deliveries,
		DisplayWidth:  c.DisplayWidth,
		DisplayHeight: c.DisplayHeight,
		MaxWidth:      c.MaxWidth,
		MaxHeight:     c.MaxHeight,
		MaxBitrate:    c.MaxBitrate,
	}
}

// ResolverOptions returns the resolver settings carried by the config.
func (c *Config) ResolverOptions(logger log.Logger, metrics *metric.Metrics) []vast.Option {
	return []vast.Option{
		vast.WithLoadTimeout(c.LoadTimeout),
		vast.WithMaxWrapperDepth(c.MaxWrapperDepth),
		vast.WithMinDuration(c.MinDuration),
		vast.WithCapabilities(c.Capabilities()),
		vast.WithLogger(logger),
		vast.WithMetrics(metrics),
	}
}

// Fetcher returns an HTTP fetcher honoring the document limits.
func (c *Config) Fetcher() *transport.HTTPFetcher {
	f := transport.NewHTTPFetcher(c.LoadTimeout)
	f.UserAgent = c.UserAgent
	f.MaxBytes = c.MaxDocumentBytes
	return f
}

// PixelConfig returns the tracking pixel worker settings.
func (c *Config) PixelConfig() transport.PixelConfig {
	return transport.PixelConfig{
		Workers:   c.DispatchWorkers,
		QueueSize: c.DispatchQueue,
		Timeout:   c.DispatchTimeout,
		UserAgent: c.UserAgent,
	}
}

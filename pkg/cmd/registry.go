// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"
	"time"

	"github.com/dukex/agentflow/pkg/credentials"
	"github.com/dukex/agentflow/pkg/gateway"
	"github.com/dukex/agentflow/pkg/metrics"
	"github.com/dukex/agentflow/pkg/registry"
	"go.opentelemetry.io/otel/trace"
)

// GatewayConfig locates the AI gateway and the caller identity.
type GatewayConfig struct {
	URL        string
	APIKey     string
	UserID     string
	CatalogTTL time.Duration
}

// NewProvisioner returns a static provisioner when an API key is configured,
// otherwise one that asks the gateway for a key.
//
// nolint:ireturn
func NewProvisioner(cfg GatewayConfig, logger *slog.Logger) credentials.Provisioner {
	if cfg.APIKey != "" {
		return credentials.NewStatic(cfg.APIKey, cfg.UserID)
	}

	return credentials.NewGateway(cfg.URL, cfg.UserID, nil, logger)
}

// NewRegistry registers the built-in components and, when a gateway is
// configured, backs the AI category with its model catalog.
func NewRegistry(
	cfg GatewayConfig,
	provisioner credentials.Provisioner,
	tracer trace.Tracer,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*registry.Registry, error) {
	opts := []registry.Option{registry.WithTracer(tracer), registry.WithMetrics(m)}
	if cfg.CatalogTTL > 0 {
		opts = append(opts, registry.WithCatalogTTL(cfg.CatalogTTL))
	}

	var catalog registry.CatalogSource
	if cfg.URL != "" {
		catalog = gateway.NewCatalogClient(cfg.URL, provisioner, nil, logger)
	}

	reg := registry.New(logger, catalog, opts...)
	if err := reg.RegisterDefaultComponents(); err != nil {
		return nil, err
	}

	return reg, nil
}

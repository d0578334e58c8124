package routemesh

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/routemesh/checkpoint"
	"github.com/hupe1980/routemesh/config"
	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/marketdata"
	"github.com/hupe1980/routemesh/model"
	"github.com/hupe1980/routemesh/model/anthropic"
	"github.com/hupe1980/routemesh/model/gemini"
	"github.com/hupe1980/routemesh/model/openai"
	"github.com/hupe1980/routemesh/ui"
	"github.com/hupe1980/routemesh/ui/natssink"
)

// Service bundles a Mesh built from configuration with the resources it
// owns. Close releases them.
type Service struct {
	*Mesh

	closers []func() error
}

// Close releases the checkpoint database and the NATS connection.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}

	return errors.Join(errs...)
}

// NewModel creates the completion model selected by cfg.
func NewModel(ctx context.Context, cfg config.LLMConfig) (model.Model, error) {
	key := cfg.ResolveAPIKey()

	switch cfg.Provider {
	case "openai":
		if key == "" {
			return nil, core.NewConfigurationError(cfg.APIKeyEnv)
		}

		return openai.NewModel(func(o *openai.Options) {
			o.Model = cfg.Model
			o.APIKey = key
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
		}), nil
	case "anthropic":
		if key == "" {
			return nil, core.NewConfigurationError(cfg.APIKeyEnv)
		}

		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Model)
			o.APIKey = key
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
		}), nil
	case "gemini":
		return gemini.NewModel(ctx, func(o *gemini.Options) {
			o.Model = cfg.Model
			o.APIKey = key
			o.Temperature = float32(cfg.Temperature)
			o.MaxOutputTokens = int32(cfg.MaxTokens) //nolint:gosec
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewStore opens the checkpoint store selected by cfg. The returned close
// function is never nil.
func NewStore(cfg config.CheckpointConfig) (checkpoint.Store, func() error, error) {
	switch cfg.Driver {
	case "", "memory":
		return checkpoint.NewMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		s, err := checkpoint.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}

		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint driver %q", cfg.Driver)
	}
}

// FromConfig wires a Mesh from cfg. m overrides the configured model when
// non-nil. optFns are applied after the configured options.
func FromConfig(ctx context.Context, cfg config.Config, m model.Model, optFns ...func(o *Options)) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := cfg.Log.Logger()
	if err != nil {
		return nil, err
	}

	if m == nil {
		if m, err = NewModel(ctx, cfg.LLM); err != nil {
			return nil, err
		}
	}

	svc := &Service{}

	store, closeStore, err := NewStore(cfg.Checkpoint)
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, closeStore)

	var sink ui.Sink = ui.Discard

	if cfg.NATS.URL != "" {
		conn, err := natssink.Connect(cfg.NATS.URL, "routemesh")
		if err != nil {
			_ = svc.Close()
			return nil, err
		}

		svc.closers = append(svc.closers, func() error { return conn.Drain() })
		sink = natssink.New(conn, func(o *natssink.Options) { o.SubjectPrefix = cfg.NATS.SubjectPrefix })
	}

	market := marketdata.New(func(o *marketdata.Options) {
		o.BaseURL = cfg.MarketData.BaseURL
		o.APIKey = cfg.MarketData.ResolveAPIKey()
		o.Retry = marketdata.RetryConfig{
			MaxRetries:      cfg.MarketData.Retry.MaxRetries,
			InitialInterval: cfg.MarketData.Retry.InitialInterval,
			MaxInterval:     cfg.MarketData.Retry.MaxInterval,
		}
		o.Logger = logger
	})

	fns := append([]func(o *Options){func(o *Options) {
		o.EngineConfig.MaxSteps = cfg.Engine.MaxSteps
		o.StrictRouting = cfg.Engine.StrictRouting
		o.Store = store
		o.Sink = sink
		o.Logger = logger
		o.Workflows.MarketData = market
		o.Workflows.PizzaFindDelay = cfg.Pizza.FindDelay
		o.Workflows.PizzaOrderDelay = cfg.Pizza.OrderDelay
	}}, optFns...)

	mesh, err := New(m, fns...)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}

	svc.Mesh = mesh

	return svc, nil
}

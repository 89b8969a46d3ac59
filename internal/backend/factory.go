package backend

import (
	"context"
	"fmt"

	applog "kvitto/internal/log"
	"kvitto/internal/source/kivra"
	"kvitto/internal/source/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new source factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentSource),
	}
}

// CreateSource implements Factory.CreateSource
func (f *DefaultFactory) CreateSource(ctx context.Context, config Config) (*SourceResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case KivraBackend:
		return f.createKivraSource(ctx, config)
	case MemoryBackend:
		return f.createMemorySource(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createKivraSource(ctx context.Context, config Config) (*SourceResult, error) {
	client, err := kivra.New(kivra.Options{
		BaseURL:           config.BaseURL,
		Token:             config.Token,
		ActorKey:          config.ActorKey,
		RequestsPerSecond: config.RequestsPerSecond,
		Timeout:           config.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize kivra client: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized kivra source",
		"base_url", config.BaseURL,
		"requests_per_second", config.RequestsPerSecond)

	return &SourceResult{Source: client, Backend: KivraBackend}, nil
}

func (f *DefaultFactory) createMemorySource(ctx context.Context, config Config) (*SourceResult, error) {
	dataDir := config.SeedDir
	if dataDir == "" {
		dataDir = "data"
	}

	src, err := memory.NewFromDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("initialize memory source: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized memory source", "data_directory", dataDir)

	return &SourceResult{Source: src, Backend: MemoryBackend}, nil
}

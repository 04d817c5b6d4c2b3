package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"esdata/features/mapping"
	"esdata/features/source"
	"esdata/internal/adapter/elasticsearch"
	"esdata/internal/config"
)

// Pinger is satisfied by clients that can check the cluster is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Elasticsearch *elasticsearch.Client
	Mappings      *mapping.Registry
	Opener        *source.Router
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	// Mappings
	registry, err := mapping.LoadFile(cfg.MappingsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load mappings: %w", err)
	}

	// Elasticsearch
	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     cfg.ElasticsearchURLs,
		Username:      cfg.ElasticsearchUsername,
		Password:      cfg.ElasticsearchPassword,
		SkipTLSVerify: cfg.ElasticsearchSkipTLSVerify,
	})
	if err != nil {
		return nil, err
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	if err := PingWithRetry(ctx, esClient, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		return nil, fmt.Errorf("failed to ping elasticsearch: %w", err)
	}

	// Object store is optional; without it s3:// locations are rejected
	var objects source.ObjectStore
	if cfg.S3Endpoint != "" {
		store, err := source.NewMinioStore(source.MinioConfig{
			EndpointURL:     cfg.S3Endpoint,
			Region:          cfg.S3Region,
			UseSSL:          cfg.S3UseSSL,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("object store error: %w", err)
		}
		objects = store
	}

	return &Dependencies{
		Elasticsearch: esClient,
		Mappings:      registry,
		Opener:        source.NewRouter(os.DirFS(cfg.FixturesDir), objects),
	}, nil
}

// PingWithRetry pings until the cluster answers or attempts run out.
func PingWithRetry(ctx context.Context, p Pinger, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = p.Ping(ctx); err == nil {
			return nil
		}
		if i < attempts-1 {
			slog.WarnContext(ctx, "failed to ping elasticsearch, retrying...", "attempt", i+1, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}

package fixture

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"esdata/features/loader"
	"esdata/internal/app"
	"esdata/internal/config"
	"esdata/internal/logger"
)

// Main runs the suite-level step around m.Run. Use it from TestMain:
//
//	func TestMain(m *testing.M) {
//		ext, err := fixture.FromEnv(context.Background())
//		...
//		os.Exit(fixture.Main(m, "books", plan, ext))
//	}
func Main(m *testing.M, suite string, plan Plan, ext *Extension) int {
	ctx := context.Background()
	if err := ext.BeforeAll(ctx, suite, plan); err != nil {
		slog.ErrorContext(ctx, "failed to load suite fixtures", "suite", suite, "error", err)
		return 1
	}
	defer ext.AfterAll(suite)
	return m.Run()
}

// Case applies the step planned for t's name and fails t on error.
func Case(t testing.TB, suite string, plan Plan, ext *Extension) {
	t.Helper()
	if err := ext.BeforeEach(t.Context(), suite, t.Name(), plan); err != nil {
		t.Fatalf("load fixtures: %v", err)
	}
}

// FromEnv wires an Extension from environment configuration. Every suite
// shares the bootstrapped clients and gets its own loader.
func FromEnv(ctx context.Context) (*Extension, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New(os.Stderr, cfg.LogLevel)
	cache := NewCache(func(_ context.Context, suite string) (*loader.Loader, error) {
		return app.New(cfg, deps, log.With("suite", suite)).Loader, nil
	})
	return NewExtension(cache, log), nil
}

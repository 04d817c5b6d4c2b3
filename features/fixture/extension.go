package fixture

import (
	"context"
	"fmt"
	"log/slog"

	"esdata/internal/correlation"
)

// Extension is the runner-agnostic hook set. Bind BeforeAll and AfterAll to
// suite setup and teardown, and BeforeEach to the start of every case.
type Extension struct {
	cache  *Cache
	logger *slog.Logger
}

func NewExtension(cache *Cache, logger *slog.Logger) *Extension {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extension{cache: cache, logger: logger}
}

func (e *Extension) BeforeAll(ctx context.Context, suite string, plan Plan) error {
	ctx, _ = correlation.Ensure(ctx)
	e.logger.DebugContext(ctx, "preparing suite data", "suite", suite)
	if err := e.apply(ctx, suite, plan.Step); err != nil {
		return fmt.Errorf("suite %s: %w", suite, err)
	}
	return nil
}

// BeforeEach applies the step registered for caseName. Cases without a
// step are left alone.
func (e *Extension) BeforeEach(ctx context.Context, suite, caseName string, plan Plan) error {
	step, ok := plan.Cases[caseName]
	if !ok || step.empty() {
		return nil
	}
	ctx, _ = correlation.Ensure(ctx)
	e.logger.DebugContext(ctx, "preparing case data", "suite", suite, "case", caseName)
	if err := e.apply(ctx, suite, step); err != nil {
		return fmt.Errorf("suite %s case %s: %w", suite, caseName, err)
	}
	return nil
}

func (e *Extension) AfterAll(suite string) {
	e.cache.Remove(suite)
}

func (e *Extension) apply(ctx context.Context, suite string, step Step) error {
	if step.empty() {
		return nil
	}
	sources, err := step.sources()
	if err != nil {
		return err
	}
	l, err := e.cache.Get(ctx, suite)
	if err != nil {
		return err
	}
	if err := l.DeleteAll(ctx, step.Delete); err != nil {
		return err
	}
	_, err = l.LoadAll(ctx, sources)
	return err
}

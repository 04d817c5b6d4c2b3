package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"esdata/internal/app"
	"esdata/internal/config"
	"esdata/internal/logger"
)

// BootstrapFunc builds the clients a command needs.
type BootstrapFunc func(ctx context.Context, cfg *config.Config) (*app.Dependencies, error)

type session struct {
	bootstrap BootstrapFunc
	logOut    io.Writer

	mappingsFile string
	fixturesDir  string
	logLevel     string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand returns the esdata command tree. Logs go to logOut, command
// output to the command's out writer.
func NewRootCommand(bootstrap BootstrapFunc, logOut io.Writer) *cobra.Command {
	s := &session{bootstrap: bootstrap, logOut: logOut}

	root := &cobra.Command{
		Use:           "esdata",
		Short:         "Load and delete Elasticsearch fixture data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.configure()
		},
	}
	root.PersistentFlags().StringVar(&s.mappingsFile, "mappings", "", "mappings file (overrides ESDATA_MAPPINGS_FILE)")
	root.PersistentFlags().StringVar(&s.fixturesDir, "fixtures", "", "directory relative locations are resolved in (overrides ESDATA_FIXTURES_DIR)")
	root.PersistentFlags().StringVar(&s.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	root.AddCommand(newLoadCommand(s))
	root.AddCommand(newDeleteCommand(s))
	root.AddCommand(newApplyCommand(s))
	return root
}

func (s *session) configure() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if s.mappingsFile != "" {
		cfg.MappingsFile = s.mappingsFile
	}
	if s.fixturesDir != "" {
		cfg.FixturesDir = s.fixturesDir
	}
	if s.logLevel != "" {
		cfg.LogLevel = s.logLevel
	}
	s.cfg = cfg
	s.logger = logger.New(s.logOut, cfg.LogLevel)
	slog.SetDefault(s.logger)
	return nil
}

func (s *session) app(ctx context.Context) (*app.App, error) {
	deps, err := s.bootstrap(ctx, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return app.New(s.cfg, deps, s.logger), nil
}

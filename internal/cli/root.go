package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aevon-lab/schema-registry/internal/config"
	"github.com/aevon-lab/schema-registry/internal/registry"
)

var version = "dev"

// app carries state shared by every subcommand.
type app struct {
	cfgFile string
	cfg     *config.Config

	// openBackend is swapped out in tests.
	openBackend func(cfg *config.Config) (registry.Backend, func() error, error)
}

// NewRootCommand builds the schemaregistry command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{openBackend: openBackend})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:     "schemaregistry",
		Short:   "Versioned schema registry",
		Long:    `A registry that stores an append-only history of opaque schema payloads per schema name.`,
		Version: version,
		// Runtime failures are logged by the caller; usage is only useful for flag errors.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "",
		"config file (defaults and SCHEMAREGISTRY_* environment variables apply without one)")

	root.AddCommand(
		newServeCommand(a),
		newListCommand(a),
		newCreateCommand(a),
		newPushCommand(a),
		newVersionsCommand(a),
		newGetCommand(a),
	)
	return root
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, _ := cfg.Log.SlogLevel() // validated by Load
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// withRegistry opens the configured backend for the duration of fn.
func (a *app) withRegistry(fn func(reg *registry.Registry) error, opts ...registry.Option) (err error) {
	backend, closeBackend, err := a.openBackend(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s backend: %w", a.cfg.Storage.Backend, err)
	}
	defer func() {
		if cerr := closeBackend(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(registry.New(backend, opts...))
}

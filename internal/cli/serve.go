package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/chronod/internal/config"
	"github.com/roach88/chronod/internal/node"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string

	// NodeOptions are passed to node.New (for testing).
	NodeOptions []node.Option

	// ready is called with the node once it is bound (for testing).
	ready func(*node.Node)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a clock node",
		Long: `Run a chronod node.

The node loads its configuration from the YAML file given by --config
(optional) and CHRONOD_* environment variables, opens its SQLite database
(creating it if it doesn't exist), resumes its clock from the last stored
snapshot and serves gossip and gateway queries over UDP, plus the HTTP API
when net.http is set.

Example:
  chronod serve --config ./chronod.yaml
  CHRONOD_NODE_ID=A CHRONOD_NET_PEERS=B=127.0.0.1:7401 chronod serve --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.Verbose)
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	logger.Info("opening database", "path", cfg.DB.Path)
	n, err := node.New(ctx, cfg, logger, opts.NodeOptions...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start node", err)
	}
	defer func() {
		if closeErr := n.Close(); closeErr != nil {
			logger.Error("error closing node", "error", closeErr)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Node %s listening on %s\n", n.ID(), n.Addr())
	if addr := n.HTTPAddr(); addr != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "HTTP API on http://%s\n", addr)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
	if opts.ready != nil {
		opts.ready(n)
	}

	if err := n.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "node error", err)
	}

	logger.Info("node stopped gracefully")
	return nil
}

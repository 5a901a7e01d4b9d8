package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/chronod/internal/gateway"
	"github.com/roach88/chronod/internal/trigger"
	"github.com/roach88/chronod/internal/wire"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	ClientOptions
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show record totals of a node",
		Long: `Show how many clock infos, merge logs and messages a running node
has stored. Shorthand for "query --method status".

Example:
  chronod status --addr 127.0.0.1:7400`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	opts.ClientOptions.register(cmd)

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	req := wire.GatewayRequest{
		RequestID: trigger.UUIDv7Generator{}.Generate(),
		Method:    uint32(gateway.MethodStatus),
	}
	data, err := opts.read(commandContext(cmd), req)
	if err != nil {
		return report(out, err)
	}

	result, err := decodeQuery(0, gateway.MethodStatus, 0, data)
	if err != nil {
		return WrapExitError(ExitFailure, "undecodable status", err)
	}
	return out.SuccessFor(req.RequestID, result)
}

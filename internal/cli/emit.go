package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/chronod/internal/vlc"
	"github.com/roach88/chronod/internal/wire"
)

// EmitOptions holds flags for the emit command.
type EmitOptions struct {
	*RootOptions
	ClientOptions
	MessageID string
	From      string
	To        string
	Type      string
	Data      string
}

// EmitResult is the snapshot a node produced for an emitted message.
type EmitResult struct {
	MessageID string    `json:"message_id"`
	NodeID    string    `json:"node_id"`
	Count     uint64    `json:"count"`
	Clock     vlc.Clock `json:"clock"`
	ClockHash string    `json:"clock_hash"`
	CreateAt  int64     `json:"create_at"`
}

func (r EmitResult) String() string {
	return fmt.Sprintf("message %s stamped by %s\n  count: %d\n  clock: %s\n  hash:  %s",
		r.MessageID, r.NodeID, r.Count, r.Clock, r.ClockHash)
}

// NewEmitCommand creates the emit command.
func NewEmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Send a message to a node for stamping",
		Long: `Send an application message to a running node as a client write.

The node advances its clock, stores the message and gossips it to its
peers. The reply carries the snapshot the message was stamped with.

Examples:
  chronod emit --addr 127.0.0.1:7400 --data hello
  chronod emit --addr 127.0.0.1:7400 --type chat --to B --data hi --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit(opts, cmd)
		},
	}

	opts.ClientOptions.register(cmd)
	cmd.Flags().StringVar(&opts.MessageID, "id", "", "message id (generated by the node when empty)")
	cmd.Flags().StringVar(&opts.From, "from", "", "sender id (the node id when empty)")
	cmd.Flags().StringVar(&opts.To, "to", "", "recipient id (broadcast when empty)")
	cmd.Flags().StringVar(&opts.Type, "type", "event", "message type (chat|event or a number)")
	cmd.Flags().StringVar(&opts.Data, "data", "", "message payload")

	return cmd
}

func runEmit(opts *EmitOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	typ, err := vlc.ParseMessageType(opts.Type)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --type", err)
	}

	msg := vlc.ApplicationMessage{
		ID:   opts.MessageID,
		Type: typ,
		Data: []byte(opts.Data),
		From: opts.From,
		To:   opts.To,
	}
	out.VerboseLog("emitting %s message to %s", typ, opts.Addr)

	reply, err := opts.roundTrip(commandContext(cmd), wire.Envelope{
		Identity: wire.IdentityClient,
		Action:   wire.ActionWrite,
		Message:  msg,
	})
	if err != nil {
		return err
	}

	if reply.Message.Type != vlc.MessageTypeClock {
		_, err := gatewayData(reply)
		if err == nil {
			err = NewExitError(ExitFailure, "node acknowledged without a snapshot")
		}
		return report(out, err)
	}

	trig, err := wire.UnmarshalEventTrigger(reply.Message.Data)
	if err != nil {
		return WrapExitError(ExitFailure, "undecodable event trigger", err)
	}
	info := trig.ClockInfo
	return out.Success(EmitResult{
		MessageID: info.MessageID,
		NodeID:    info.NodeID,
		Count:     info.Count,
		Clock:     info.Clock,
		ClockHash: info.ClockHash,
		CreateAt:  info.CreateAt,
	})
}

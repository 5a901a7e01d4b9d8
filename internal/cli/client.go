package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chronod/internal/gateway"
	"github.com/roach88/chronod/internal/transport"
	"github.com/roach88/chronod/internal/vlc"
	"github.com/roach88/chronod/internal/wire"
)

// ClientOptions holds the flags shared by commands that talk to a node.
type ClientOptions struct {
	Addr    string
	Timeout time.Duration
}

func (o *ClientOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Addr, "addr", "", "UDP address of the node (required)")
	_ = cmd.MarkFlagRequired("addr")
	cmd.Flags().DurationVar(&o.Timeout, "timeout", transport.DefaultRequestTimeout, "how long to wait for a reply")
}

// roundTrip sends a client envelope and decodes the node's reply.
func (o *ClientOptions) roundTrip(ctx context.Context, env wire.Envelope) (wire.Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	raw, err := transport.Request(ctx, o.Addr, wire.MarshalEnvelope(env))
	if err != nil {
		return wire.Envelope{}, WrapExitError(ExitCommandError, "request failed", err)
	}
	reply, err := wire.UnmarshalEnvelope(raw)
	if err != nil {
		return wire.Envelope{}, WrapExitError(ExitFailure, "undecodable reply", err)
	}
	return reply, nil
}

// read runs a gateway request and returns the data of a successful
// response. A failed response becomes a *GatewayError.
func (o *ClientOptions) read(ctx context.Context, req wire.GatewayRequest) ([]byte, error) {
	reply, err := o.roundTrip(ctx, wire.Envelope{
		Identity: wire.IdentityClient,
		Action:   wire.ActionRead,
		Message: vlc.ApplicationMessage{
			ID:   req.RequestID,
			Type: vlc.MessageTypeGateway,
			Data: wire.MarshalGatewayRequest(req),
		},
	})
	if err != nil {
		return nil, err
	}
	return gatewayData(reply)
}

// gatewayData unwraps a reply that must carry a gateway response.
func gatewayData(reply wire.Envelope) ([]byte, error) {
	if reply.Message.Type != vlc.MessageTypeGateway {
		return nil, NewExitError(ExitFailure, fmt.Sprintf("unexpected reply type %s", reply.Message.Type))
	}
	resp, err := wire.UnmarshalGatewayResponse(reply.Message.Data)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "undecodable gateway response", err)
	}
	if !resp.Success {
		return nil, &GatewayError{RequestID: resp.RequestID, Code: gateway.Code(resp.Code), Message: resp.Message}
	}
	return resp.Data, nil
}

// GatewayError is a request the node answered with a failure code.
type GatewayError struct {
	RequestID string
	Code      gateway.Code
	Message   string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// report turns an error into formatted output and an exit code. Gateway
// refusals are printed in the configured format; other errors pass through.
func report(f *OutputFormatter, err error) error {
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		return err
	}
	if outErr := f.Error(gwErr.Code, gwErr.Message, nil); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, "request refused", gwErr)
}

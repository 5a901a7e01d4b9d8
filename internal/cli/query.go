package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/chronod/internal/gateway"
	"github.com/roach88/chronod/internal/trigger"
	"github.com/roach88/chronod/internal/vlc"
	"github.com/roach88/chronod/internal/wire"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	ClientOptions
	Kind      string
	Method    string
	MessageID string
	After     int64
	Limit     uint32
	RequestID string
}

// ClockInfoRow is one clock info in query output. Seq is zero for by-id
// lookups.
type ClockInfoRow struct {
	Seq int64 `json:"seq,omitempty"`
	vlc.ClockInfo
}

// MergeLogRow is one merge log in query output.
type MergeLogRow struct {
	Seq int64 `json:"seq"`
	vlc.MergeLog
}

// MessageRow is one application message in query output.
type MessageRow struct {
	Seq int64 `json:"seq,omitempty"`
	vlc.ApplicationMessage
}

// QueryResult holds the decoded answer to a gateway query.
type QueryResult struct {
	Kind       string         `json:"kind,omitempty"`
	Method     string         `json:"method"`
	ClockInfos []ClockInfoRow `json:"clock_infos,omitempty"`
	MergeLogs  []MergeLogRow  `json:"merge_logs,omitempty"`
	Messages   []MessageRow   `json:"messages,omitempty"`
	Status     *wire.Status   `json:"status,omitempty"`
	Next       *int64         `json:"next,omitempty"` // cursor for the following page
}

func (r QueryResult) String() string {
	var b strings.Builder
	if r.Status != nil {
		fmt.Fprintf(&b, "clock_infos: %d\nmerge_logs:  %d\nmessages:    %d",
			r.Status.ClockInfos, r.Status.MergeLogs, r.Status.Messages)
		return b.String()
	}
	for _, c := range r.ClockInfos {
		fmt.Fprintf(&b, "%6d  %s  %s count=%d clock=%s hash=%s\n",
			c.Seq, c.MessageID, c.NodeID, c.Count, c.Clock, c.ClockHash)
	}
	for _, m := range r.MergeLogs {
		fmt.Fprintf(&b, "%6d  %s(%d) <- %s(%d)  %s <- %s\n",
			m.Seq, m.FromID, m.StartCount, m.ToID, m.EndCount, m.SClockHash, m.EClockHash)
	}
	for _, m := range r.Messages {
		fmt.Fprintf(&b, "%6d  %s  %s %s -> %s  %q\n",
			m.Seq, m.ID, m.Type, m.From, m.To, m.Data)
	}
	if b.Len() == 0 {
		b.WriteString("no records\n")
	}
	if r.Next != nil {
		fmt.Fprintf(&b, "next cursor: %d", *r.Next)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read causal history from a node",
		Long: `Read clock infos, merge logs or messages from a running node through
its query gateway.

Methods:
  by_id      one clock_info or message by message id (--id)
  by_cursor  the page of records after --after, at most --limit rows
  status     totals of every record kind (--kind is ignored)

Examples:
  chronod query --addr 127.0.0.1:7400 --kind clock_info --method by_id --id m1
  chronod query --addr 127.0.0.1:7400 --kind merge_log --method by_cursor --after 40 --limit 20`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	opts.ClientOptions.register(cmd)
	cmd.Flags().StringVar(&opts.Kind, "kind", "clock_info", "record kind (clock_info|merge_log|message)")
	cmd.Flags().StringVar(&opts.Method, "method", "by_cursor", "read method (by_id|by_cursor|status)")
	cmd.Flags().StringVar(&opts.MessageID, "id", "", "message id for by_id")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "exclusive cursor for by_cursor")
	cmd.Flags().Uint32Var(&opts.Limit, "limit", 0, "page size for by_cursor (0 for the node's maximum)")
	cmd.Flags().StringVar(&opts.RequestID, "request-id", "", "request id (generated when empty)")

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	kind, err := gateway.ParseKind(opts.Kind)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --kind", err)
	}
	method, err := gateway.ParseMethod(opts.Method)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --method", err)
	}
	if method == gateway.MethodByID && opts.MessageID == "" {
		return NewExitError(ExitCommandError, "--id is required for by_id")
	}

	req := wire.GatewayRequest{
		RequestID: opts.RequestID,
		Kind:      uint32(kind),
		Method:    uint32(method),
		MessageID: opts.MessageID,
		After:     opts.After,
		Limit:     opts.Limit,
	}
	if req.RequestID == "" {
		req.RequestID = trigger.UUIDv7Generator{}.Generate()
	}
	out.VerboseLog("query %s %s -> %s", kind, method, opts.Addr)

	data, err := opts.read(commandContext(cmd), req)
	if err != nil {
		return report(out, err)
	}

	result, err := decodeQuery(kind, method, opts.After, data)
	if err != nil {
		return WrapExitError(ExitFailure, "undecodable query result", err)
	}
	return out.SuccessFor(req.RequestID, result)
}

// decodeQuery decodes response data according to the request selectors.
func decodeQuery(kind gateway.Kind, method gateway.Method, after int64, data []byte) (QueryResult, error) {
	result := QueryResult{Method: method.String()}
	if method == gateway.MethodStatus {
		s, err := wire.UnmarshalStatus(data)
		if err != nil {
			return QueryResult{}, err
		}
		result.Status = &s
		return result, nil
	}
	result.Kind = kind.String()

	switch method {
	case gateway.MethodByID:
		switch kind {
		case gateway.KindClockInfo:
			info, err := wire.UnmarshalClockInfo(data)
			if err != nil {
				return QueryResult{}, err
			}
			result.ClockInfos = []ClockInfoRow{{ClockInfo: info}}
		case gateway.KindMessage:
			msg, err := wire.UnmarshalMessage(data)
			if err != nil {
				return QueryResult{}, err
			}
			result.Messages = []MessageRow{{ApplicationMessage: msg}}
		default:
			return QueryResult{}, fmt.Errorf("unexpected %s for %s", kind, method)
		}

	case gateway.MethodByCursor:
		next := after
		switch kind {
		case gateway.KindClockInfo:
			entries, err := wire.UnmarshalClockInfoPage(data)
			if err != nil {
				return QueryResult{}, err
			}
			result.ClockInfos = make([]ClockInfoRow, len(entries))
			for i, e := range entries {
				result.ClockInfos[i] = ClockInfoRow{Seq: e.Seq, ClockInfo: e.Info}
				next = e.Seq
			}
		case gateway.KindMergeLog:
			entries, err := wire.UnmarshalMergeLogPage(data)
			if err != nil {
				return QueryResult{}, err
			}
			result.MergeLogs = make([]MergeLogRow, len(entries))
			for i, e := range entries {
				result.MergeLogs[i] = MergeLogRow{Seq: e.Seq, MergeLog: e.Log}
				next = e.Seq
			}
		case gateway.KindMessage:
			entries, err := wire.UnmarshalMessagePage(data)
			if err != nil {
				return QueryResult{}, err
			}
			result.Messages = make([]MessageRow, len(entries))
			for i, e := range entries {
				result.Messages[i] = MessageRow{Seq: e.Seq, ApplicationMessage: e.Message}
				next = e.Seq
			}
		}
		result.Next = &next

	default:
		return QueryResult{}, fmt.Errorf("unexpected method %s", method)
	}
	return result, nil
}

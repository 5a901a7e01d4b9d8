package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/chronod/internal/store"
	"github.com/roach88/chronod/internal/vlc"
)

// verifyBatch is the page size used to scan clock infos.
const verifyBatch = 500

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database string
}

// VerifyProblem is one stored clock info that fails an integrity check.
type VerifyProblem struct {
	Seq       int64  `json:"seq"`
	MessageID string `json:"message_id"`
	Problem   string `json:"problem"`
}

// VerifyResult summarizes an integrity check of a node database.
type VerifyResult struct {
	Database          string          `json:"database"`
	ClockInfos        int             `json:"clock_infos"`
	Problems          []VerifyProblem `json:"problems"`
	OrphanedMergeLogs []MergeLogRow   `json:"orphaned_merge_logs"`
}

// OK reports whether no problem was found.
func (r VerifyResult) OK() bool {
	return len(r.Problems) == 0 && len(r.OrphanedMergeLogs) == 0
}

func (r VerifyResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "checked %d clock infos in %s\n", r.ClockInfos, r.Database)
	for _, p := range r.Problems {
		fmt.Fprintf(&b, "  seq %d (%s): %s\n", p.Seq, p.MessageID, p.Problem)
	}
	for _, m := range r.OrphanedMergeLogs {
		fmt.Fprintf(&b, "  merge log %d (%s <- %s): references a missing clock info\n", m.Seq, m.FromID, m.ToID)
	}
	if r.OK() {
		b.WriteString("OK")
	} else {
		fmt.Fprintf(&b, "FAILED: %d bad clock infos, %d orphaned merge logs", len(r.Problems), len(r.OrphanedMergeLogs))
	}
	return b.String()
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the integrity of a node database",
		Long: `Check a node database offline.

Every stored clock info is validated and its clock hash recomputed. Every
merge log must reference clock infos that are stored (the genesis hash
excepted). The command exits with status 1 when a problem is found.

Example:
  chronod verify --db ./chronod.db
  chronod verify --db ./chronod.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	// store.Open would create a missing database.
	if _, err := os.Stat(opts.Database); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
		}
		return WrapExitError(ExitCommandError, "failed to stat database", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	result, err := verifyStore(commandContext(cmd), st, out)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read database", err)
	}
	result.Database = opts.Database

	if err := out.Success(result); err != nil {
		return err
	}
	if !result.OK() {
		return NewExitError(ExitFailure, "integrity check failed")
	}
	return nil
}

func verifyStore(ctx context.Context, st *store.Store, out *OutputFormatter) (VerifyResult, error) {
	result := VerifyResult{
		Problems:          []VerifyProblem{},
		OrphanedMergeLogs: []MergeLogRow{},
	}

	var cursor int64
	for {
		page, err := st.FindClockInfosAfter(ctx, cursor, verifyBatch)
		if err != nil {
			return VerifyResult{}, err
		}
		if len(page) == 0 {
			break
		}
		for _, rec := range page {
			result.ClockInfos++
			cursor = rec.Seq
			if err := rec.Validate(); err != nil {
				result.Problems = append(result.Problems, VerifyProblem{Seq: rec.Seq, MessageID: rec.MessageID, Problem: err.Error()})
				continue
			}
			if err := vlc.VerifyHash(rec.ClockInfo); err != nil {
				result.Problems = append(result.Problems, VerifyProblem{Seq: rec.Seq, MessageID: rec.MessageID, Problem: err.Error()})
			}
		}
		out.VerboseLog("checked %d clock infos", result.ClockInfos)
	}

	orphans, err := st.FindOrphanedMergeLogs(ctx)
	if err != nil {
		return VerifyResult{}, err
	}
	for _, o := range orphans {
		result.OrphanedMergeLogs = append(result.OrphanedMergeLogs, MergeLogRow{Seq: o.Seq, MergeLog: o.MergeLog})
	}
	return result, nil
}

package app

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/trufnetwork/creddigest/extensions/tn_creddigest"
)

type recordRow struct {
	Key       string `json:"key"`
	State     string `json:"state"`
	Attester  string `json:"attester"`
	Holder    string `json:"holder"`
	SeenAt    string `json:"seen_at,omitempty"`
	SettledAt string `json:"settled_at,omitempty"`
}

func toRecordRow(e tn_creddigest.Entry) recordRow {
	row := recordRow{
		Key:      e.Key.Hex(),
		State:    e.State.String(),
		Attester: e.Record.Attester.Hex(),
		Holder:   e.Record.Holder.Hex(),
	}
	if !e.SeenAt.IsZero() {
		row.SeenAt = e.SeenAt.UTC().Format(time.RFC3339)
	}
	if e.SettledAt != nil {
		row.SettledAt = e.SettledAt.UTC().Format(time.RFC3339)
	}
	return row
}

func newRecordsCmd(opts *rootOptions) *cobra.Command {
	var (
		asJSON bool
		state  string
	)

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List every seen registry key in submission order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, closeStore, err := opts.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			entries, err := registry.Records(cmd.Context())
			if err != nil {
				return err
			}
			if state != "" {
				entries = lo.Filter(entries, func(e tn_creddigest.Entry, _ int) bool {
					return e.State.String() == state
				})
			}
			rows := lo.Map(entries, func(e tn_creddigest.Entry, _ int) recordRow {
				return toRecordRow(e)
			})

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rows)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSTATE\tATTESTER\tHOLDER\tSEEN")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Key, r.State, r.Attester, r.Holder, r.SeenAt)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	cmd.Flags().StringVar(&state, "state", "", "only list keys in this state (pending, verified, rejected)")
	return cmd
}

package commands

import (
	"errors"
	"fmt"

	"boxpeer/pkg/core"
	"boxpeer/pkg/reconcile"
	"boxpeer/pkg/registry"
	"boxpeer/pkg/types"

	"github.com/spf13/cobra"
)

var listAvailability bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List published content",
	Long: `List every record published on the ledger.
When the ledger is unreachable the last mirrored listing is shown instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := printer()
		if err != nil {
			return err
		}

		records, err := listRecords(cmd)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			status("📭 No content published yet.\n")
			return nil
		}

		var states map[types.CID]reconcile.Availability
		if listAvailability {
			snap, err := BP.Reconciler.Reconcile(ctx, records)
			if err != nil {
				return fmt.Errorf("availability check failed: %w", err)
			}
			states = make(map[types.CID]reconcile.Availability, len(records))
			for _, id := range snap.Resident {
				states[id] = reconcile.Resident
			}
			for _, id := range snap.RemoteOnly {
				states[id] = reconcile.RemoteOnly
			}
		}
		return p.Records(records, states)
	},
}

// listRecords 账本不可读时退回镜像
func listRecords(cmd *cobra.Command) ([]core.ContentRecord, error) {
	records, err := BP.Registry.ListAllContent(cmd.Context())
	if err == nil {
		return records, nil
	}
	if !errors.Is(err, registry.ErrRegistryUnavailable) || BP.Mirror == nil {
		return nil, err
	}
	status("⚠️  Ledger unreachable (%v), showing last known listing\n", err)
	return BP.Mirror.LastKnown(cmd.Context())
}

func init() {
	listCmd.Flags().BoolVarP(&listAvailability, "availability", "a", false, "probe the local store and show resident/remote-only")
	rootCmd.AddCommand(listCmd)
}

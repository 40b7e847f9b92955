package commands

import (
	"errors"
	"fmt"
	"time"

	"boxpeer/pkg/reconcile"
	"boxpeer/pkg/types"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Partition published content into resident and remote-only",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printer()
		if err != nil {
			return err
		}
		records, err := listRecords(cmd)
		if err != nil {
			return err
		}
		snap, err := BP.Reconciler.Reconcile(cmd.Context(), records)
		if err != nil {
			return err
		}
		return p.Snapshot(snap)
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock [cid]",
	Short: "Pin remote-only content locally and claim the hosting reward",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := types.CID(args[0])
		fmt.Printf("📌 Pinning %s...\n", id)

		p, err := BP.Reconciler.LockFile(cmd.Context(), id)
		var perr *reconcile.PromotionError
		switch {
		case err == nil:
			fmt.Printf("✅ Pinned %s and claimed %s (tx %s)\n", id, p.Amount.APT(), p.TxRef)
			return nil
		case errors.Is(err, reconcile.ErrAlreadyResident):
			fmt.Printf("ℹ️  %s is already pinned on this node, no reward to claim\n", id)
			return nil
		case errors.As(err, &perr) && perr.Stage == reconcile.StageClaim:
			fmt.Printf("⚠️  Pinned %s, but the reward claim failed: %v\n", id, perr.Err)
			fmt.Printf("   Retry with: boxpeer claim %s\n", id)
			return err
		default:
			return err
		}
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock [cid]",
	Short: "Remove a pinned CID from the local store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := types.CID(args[0])
		if err := BP.Reconciler.UnlockFile(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("🗑️  Unpinned %s\n", id)
		return nil
	},
}

var claimAll bool

var claimCmd = &cobra.Command{
	Use:   "claim [cid]",
	Short: "Retry the reward claim for pinned-but-unclaimed content",
	Args: func(cmd *cobra.Command, args []string) error {
		if claimAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var ids []types.CID
		if claimAll {
			pending, err := BP.Reconciler.PendingClaims(ctx)
			if err != nil {
				return err
			}
			for _, p := range pending {
				ids = append(ids, p.CID)
			}
		} else {
			ids = []types.CID{types.CID(args[0])}
		}
		if len(ids) == 0 {
			fmt.Println("🎉 Nothing to claim.")
			return nil
		}

		var errs []error
		for _, id := range ids {
			p, err := BP.Reconciler.RetryClaim(ctx, id)
			if err != nil {
				fmt.Printf("❌ %s: %v\n", id, err)
				errs = append(errs, err)
				continue
			}
			fmt.Printf("✅ Claimed %s for %s (tx %s)\n", p.Amount.APT(), id, p.TxRef)
		}
		return errors.Join(errs...)
	},
}

var pendingAll bool

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show content that is pinned but whose reward is unclaimed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printer()
		if err != nil {
			return err
		}
		var list []reconcile.Promotion
		if pendingAll {
			list, err = BP.Reconciler.Promotions(cmd.Context())
		} else {
			list, err = BP.Reconciler.PendingClaims(cmd.Context())
		}
		if err != nil {
			return err
		}
		if len(list) == 0 {
			status("🎉 No pending claims.\n")
			return nil
		}
		return p.Promotions(list)
	},
}

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the availability partition up to date until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval := watchInterval
		if interval <= 0 {
			interval = viper.GetDuration("reconcile.interval")
		}
		fmt.Printf("👀 Watching every %s (Ctrl-C to stop)\n", interval)

		err := BP.Reconciler.Watch(cmd.Context(), interval, reconcile.RegistrySource(BP.Registry), func(s reconcile.Snapshot) {
			fmt.Printf("🔄 [%s] pass %d: %d resident, %d remote-only, %d probe failures\n",
				s.At.Format(time.TimeOnly), s.Pass, len(s.Resident), len(s.RemoteOnly), len(s.Failed))
		})
		if errors.Is(err, cmd.Context().Err()) {
			fmt.Println("\n👋 Stopped.")
			return nil
		}
		return err
	},
}

func init() {
	claimCmd.Flags().BoolVar(&claimAll, "all", false, "retry every pending claim")
	pendingCmd.Flags().BoolVar(&pendingAll, "all", false, "include claimed promotions")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "poll interval (default reconcile.interval)")
	rootCmd.AddCommand(reconcileCmd, lockCmd, unlockCmd, claimCmd, pendingCmd, watchCmd)
}

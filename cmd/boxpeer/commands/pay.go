package commands

import (
	"errors"
	"fmt"

	"boxpeer/pkg/registry"
	"boxpeer/pkg/types"

	"github.com/spf13/cobra"
)

var payCmd = &cobra.Command{
	Use:   "pay [cid]",
	Short: "Pay the consumer fee to unlock content",
	Long: `Submit a payment for the CID, then re-query the purchaser set and
re-render the preview. An unconfirmed payment is never assumed to have
succeeded: only the re-queried purchaser set decides.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id := types.CID(args[0])
		if BP.Account.IsZero() {
			return fmt.Errorf("no account configured (set account.address or --account)")
		}

		session := BP.NewSession()
		defer session.Close()

		el, err := session.Open(ctx, id)
		if err != nil {
			return err
		}
		if !el.Gated {
			fmt.Printf("✅ %s is already unlocked for %s\n", id, BP.Account)
			return nil
		}

		fmt.Printf("💸 Paying %s for %q...\n", el.PriceLabel(), el.Title)
		res, err := session.Pay(ctx, id)
		switch {
		case err == nil && res.Unlocked:
			fmt.Printf("✅ Unlocked %s (tx %s)\n", id, res.Receipt.TxRef)
			return nil
		case errors.Is(err, registry.ErrPaymentUnconfirmed):
			fmt.Printf("⏳ Payment submitted but not yet confirmed (tx %s). Run 'boxpeer view %s' later.\n", res.Receipt.TxRef, id)
			return nil
		case errors.Is(err, registry.ErrPaymentRejected):
			return fmt.Errorf("payment rejected: %w", err)
		case err != nil:
			return err
		default:
			fmt.Printf("⏳ Payment confirmed (tx %s) but purchase not visible yet\n", res.Receipt.TxRef)
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(payCmd)
}

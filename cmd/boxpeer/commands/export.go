package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"boxpeer/pkg/exporter"
	"boxpeer/pkg/types"

	"github.com/spf13/cobra"
)

var (
	exportOut  string
	exportMeta bool
)

var exportCmd = &cobra.Command{
	Use:   "export [cid]",
	Short: "Write unlocked content or its metadata",
	Long: `Write the bytes of unlocked content to stdout or --out.
Gated content is refused before any bytes are fetched.
With --meta only the ledger record and access decision are printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id := types.CID(args[0])
		exp := exporter.NewExporter(BP.Registry, BP.Probe, BP.Account)

		if exportMeta {
			p, err := printer()
			if err != nil {
				return err
			}
			return exp.ExportMetadata(ctx, id, p)
		}

		// 默认写到 stdout，可以用 > file 重定向
		var w io.Writer = os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}

		n, err := exp.ExportFile(ctx, id, w)
		if errors.Is(err, exporter.ErrGated) {
			return fmt.Errorf("%s is gated for this account (run 'boxpeer pay %s')", id, id)
		}
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		if exportOut != "" {
			fmt.Printf("💾 Wrote %d bytes to %s\n", n, exportOut)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "write bytes to this file instead of stdout")
	exportCmd.Flags().BoolVar(&exportMeta, "meta", false, "print metadata instead of bytes")
	rootCmd.AddCommand(exportCmd)
}

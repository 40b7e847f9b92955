package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"boxpeer/pkg/core"
	"boxpeer/pkg/ignore"
	"boxpeer/pkg/registry"
	"boxpeer/pkg/types"

	"github.com/spf13/cobra"
)

var (
	publishFile        string
	publishDir         string
	publishCID         string
	publishTitle       string
	publishDescription string
	publishKind        string
	publishFee         uint64
	publishProviderFee uint64
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Register content on the ledger",
	Long: `Register a content record on the ledger.
With --file the bytes are hashed into a CID and pinned locally first,
so this node can serve them to peers right away.
With --dir every file under the directory is published the same way,
skipping paths matched by .boxpeerignore.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pub, ok := BP.Publisher()
		if !ok {
			return fmt.Errorf("the configured ledger does not accept publications")
		}
		if BP.Account.IsZero() {
			return fmt.Errorf("no account configured (set account.address or --account)")
		}

		switch {
		case publishDir != "":
			return publishTree(ctx, pub, publishDir)
		case publishFile != "":
			id, err := pinFile(ctx, publishFile)
			if err != nil {
				return err
			}
			kind := types.FileKind(publishKind)
			if kind == "" {
				kind = types.FileKind(filepath.Ext(publishFile))
			}
			title := publishTitle
			if title == "" {
				title = filepath.Base(publishFile)
			}
			return publishRecord(ctx, pub, id, kind, title)
		case publishCID != "":
			return publishRecord(ctx, pub, types.CID(publishCID), types.FileKind(publishKind), publishTitle)
		default:
			return fmt.Errorf("one of --file, --dir or --cid is required")
		}
	},
}

// pinFile 计算文件的 CID 并写入本地存储
func pinFile(ctx context.Context, path string) (types.CID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	id, err := core.RawCID(data)
	if err != nil {
		return "", err
	}
	if err := BP.Store.Put(ctx, id, data); err != nil {
		return "", fmt.Errorf("failed to pin %s: %w", path, err)
	}
	fmt.Printf("📦 Pinned %s (%d bytes) as %s\n", path, len(data), id)
	return id, nil
}

func publishRecord(ctx context.Context, pub registry.Publisher, id types.CID, kind types.FileKind, title string) error {
	record := core.ContentRecord{
		CID:         id,
		Owner:       BP.Account,
		FileKind:    kind.Normalize(),
		FeePaid:     types.Octas(publishProviderFee),
		ConsumerFee: types.Octas(publishFee),
		Title:       title,
		Description: publishDescription,
	}
	if err := record.Validate(); err != nil {
		return err
	}
	receipt, err := pub.Publish(ctx, record)
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	fmt.Printf("🚀 Published %q\n", record.Title)
	fmt.Printf("   CID:   %s\n", id)
	fmt.Printf("   Price: %s\n", priceOrFree(record.ConsumerFee))
	fmt.Printf("   Tx:    %s\n", receipt.TxRef)
	return nil
}

// publishTree 遍历目录逐个发布；已发布过的内容跳过
func publishTree(ctx context.Context, pub registry.Publisher, root string) error {
	matcher, err := ignore.NewMatcher(root)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", ignore.FileName, err)
	}

	published, skipped := 0, 0
	walkFn := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if matcher.Matches(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		id, err := pinFile(ctx, path)
		if err != nil {
			return err
		}
		err = publishRecord(ctx, pub, id, types.FileKind(filepath.Ext(path)), filepath.ToSlash(rel))
		if errors.Is(err, registry.ErrAlreadyPublished) {
			fmt.Printf("⏭️  %s already published\n", rel)
			skipped++
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", rel, err)
		}
		published++
		return nil
	}

	if err := filepath.WalkDir(root, walkFn); err != nil {
		return err
	}
	fmt.Printf("✅ Published %d files (%d already on the ledger)\n", published, skipped)
	return nil
}

func priceOrFree(fee types.Octas) string {
	if fee.IsZero() {
		return "Free"
	}
	return fee.APT()
}

func init() {
	f := publishCmd.Flags()
	f.StringVarP(&publishFile, "file", "f", "", "file to hash, pin locally and publish")
	f.StringVar(&publishDir, "dir", "", "publish every file under a directory")
	f.StringVar(&publishCID, "cid", "", "publish an existing CID instead of a file")
	f.StringVarP(&publishTitle, "title", "t", "", "display title (default: file name)")
	f.StringVarP(&publishDescription, "description", "d", "", "short description")
	f.StringVar(&publishKind, "kind", "", "file type tag such as png or mp4 (default: file extension)")
	f.Uint64Var(&publishFee, "fee", 0, "consumer fee in octas (0 = free)")
	f.Uint64Var(&publishProviderFee, "provider-fee", 0, "fee paid by the provider, in octas")
	rootCmd.AddCommand(publishCmd)
}

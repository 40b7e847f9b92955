package commands

import (
	"context"
	"fmt"
	"os"

	"boxpeer/pkg/app"
	"boxpeer/pkg/config"
	"boxpeer/pkg/exporter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	outputFormat string
	// 全局应用实例，供子命令使用
	BP *app.App
)

var rootCmd = &cobra.Command{
	Use:   "boxpeer",
	Short: "BoxPeer: pay-per-view content sharing over a peer network",
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		app.SetupLogger()

		var err error
		BP, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize boxpeer: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if BP == nil {
			return nil
		}
		return BP.Close()
	},
	SilenceUsage: true,
}

// ExecuteContext 是入口；ctx 取消时 watch 等长任务退出
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.boxpeer/config.yaml)")
	flags.StringVarP(&outputFormat, "output", "o", "table", "output format: table|json|yaml")

	// 绑定到 Viper：既可以写在 yaml 里，也可以用参数覆盖
	bind := map[string]string{
		"account":      "account.address",
		"role":         "account.role",
		"ledger-addr":  "ledger.addr",
		"storage-path": "storage.path",
		"peer":         "peer.addr",
	}
	flags.String("account", "", "account address used to pay and claim")
	flags.String("role", "", "node role: provider|distributor|consumer")
	flags.String("ledger-addr", "", "ledger gateway address")
	flags.String("storage-path", "", "directory of the local pin store")
	flags.String("peer", "", "comma separated peer addresses to fetch content from")
	for flag, key := range bind {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Println("Failed to bind flag:", err)
			os.Exit(1)
		}
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}
}

func printer() (*exporter.Printer, error) {
	format, err := exporter.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return exporter.NewPrinter(os.Stdout, format), nil
}

// status 结构化输出时不打印状态行，避免污染 json/yaml
func status(format string, args ...any) {
	if outputFormat != "" && outputFormat != string(exporter.FormatTable) {
		return
	}
	fmt.Printf(format, args...)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀：BP_LEDGER_ADDR 对应 ledger.addr
const EnvPrefix = "BP"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：当前目录 -> ./.boxpeer -> ~/.boxpeer
		viper.AddConfigPath(".")
		viper.AddConfigPath(".boxpeer")
		viper.AddConfigPath(filepath.Join(home, ".boxpeer"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// 3. 读取环境变量 (BP_ACCOUNT_ADDRESS 等)
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件不算错 (可能全靠环境变量)，格式错误才算
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("⚠️  No config file found, using defaults/env vars")
		} else {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	} else {
		fmt.Println("🔧 Using config file:", viper.ConfigFileUsed())
	}

	return nil
}

func setDefaults() {
	wd, _ := os.Getwd()
	base := filepath.Join(wd, ".boxpeer")

	// 账户
	viper.SetDefault("account.address", "")
	viper.SetDefault("account.role", "consumer")

	// 账本
	viper.SetDefault("ledger.type", "grpc")
	viper.SetDefault("ledger.addr", "localhost:7070")
	viper.SetDefault("ledger.read_timeout", "10s")
	viper.SetDefault("ledger.confirm_timeout", "30s")

	// 本地 pin 存储
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.path", filepath.Join(base, "pins"))
	viper.SetDefault("storage.compress", false)
	viper.SetDefault("storage.s3.region", "us-east-1")

	// 存在性缓存 (redis_url 为空时不启用)
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.ttl", "10m")

	// 数据库 (driver=none 时不启用镜像和持久化流水)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", filepath.Join(base, "boxpeer.db"))
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	// peer
	viper.SetDefault("peer.addr", "")
	viper.SetDefault("peer.listen", ":7070")

	// 预览
	viper.SetDefault("preview.cache_ttl", "0s")
	viper.SetDefault("preview.requery_attempts", 3)
	viper.SetDefault("preview.requery_interval", "500ms")
	viper.SetDefault("preview.pay_timeout", "2m")

	// 可用性
	viper.SetDefault("reconcile.interval", "30s")
	viper.SetDefault("reconcile.concurrency", 8)
	viper.SetDefault("reward.fraction_bps", 1000)

	viper.SetDefault("log.level", "info")
}

// PeerAddrs 解析 peer.addr (逗号分隔)
func PeerAddrs() []string {
	var out []string
	for _, a := range strings.Split(viper.GetString("peer.addr"), ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

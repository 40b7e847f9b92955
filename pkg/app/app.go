// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"boxpeer/pkg/config"
	"boxpeer/pkg/meta"
	"boxpeer/pkg/notice"
	"boxpeer/pkg/peer"
	"boxpeer/pkg/reconcile"
	"boxpeer/pkg/registry"
	"boxpeer/pkg/storage"
	"boxpeer/pkg/storage/cache"
	"boxpeer/pkg/storage/disk"
	"boxpeer/pkg/storage/s3"
	"boxpeer/pkg/types"
	"boxpeer/pkg/viewer"

	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务
type App struct {
	Account types.Address
	Role    types.NodeRole

	// Registry 账本客户端 (有数据库时包一层 Mirror)
	Registry registry.Client
	// Ledger 仅 ledger.type=memory 时非空 (boxpeerd 把它暴露为 gateway)
	Ledger *registry.Memory
	Mirror *registry.Mirror

	Store storage.Store
	Probe *storage.PinningProbe
	Peers peer.Multi

	DB   *meta.DB
	Repo *meta.Repository

	Reconciler *reconcile.Reconciler
	Notices    notice.Notifier

	closers []io.Closer
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	role, err := types.ParseNodeRole(viper.GetString("account.role"))
	if err != nil {
		return nil, err
	}
	a := &App{
		Account: types.Address(viper.GetString("account.address")).Normalize(),
		Role:    role,
		Notices: notice.Log{},
	}

	// 1. 本地 pin 存储
	store, err := initStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	store, err = a.wrapCache(store)
	if err != nil {
		return nil, err
	}
	a.Store = store

	// 2. 远端 peer
	for _, addr := range config.PeerAddrs() {
		c, err := peer.Dial(addr)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to dial peer %s: %w", addr, err)
		}
		a.Peers = append(a.Peers, c)
		a.closers = append(a.closers, c)
	}
	var remote storage.Fetcher
	if len(a.Peers) > 0 {
		remote = a.Peers
	}
	a.Probe = storage.NewPinningProbe(a.Store, remote)

	// 3. 数据库 (可选)
	if err := a.initDB(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	// 4. 账本
	if err := a.initLedger(); err != nil {
		_ = a.Close()
		return nil, err
	}

	// 5. 可用性
	var journal reconcile.Journal
	if a.Repo != nil {
		journal = reconcile.NewRepoJournal(a.Repo)
	}
	a.Reconciler = reconcile.New(reconcile.Options{
		Probe:       a.Probe,
		Registry:    a.Registry,
		Journal:     journal,
		Repo:        a.Repo,
		Owner:       a.Account,
		Role:        a.Role,
		FractionBps: viper.GetUint64("reward.fraction_bps"),
		Concurrency: viper.GetInt("reconcile.concurrency"),
		Source:      strings.Join(config.PeerAddrs(), ","),
		Notifier:    a.Notices,
	})

	return a, nil
}

// NewSession 为当前账户打开一个视图会话
func (a *App) NewSession() *viewer.Session {
	return viewer.NewSession(viewer.Options{
		Viewer:          a.Account,
		Registry:        a.Registry,
		Content:         a.Probe,
		Notifier:        a.Notices,
		CacheTTL:        viper.GetDuration("preview.cache_ttl"),
		RequeryAttempts: viper.GetInt("preview.requery_attempts"),
		RequeryInterval: viper.GetDuration("preview.requery_interval"),
		PayTimeout:      viper.GetDuration("preview.pay_timeout"),
		Concurrency:     viper.GetInt("reconcile.concurrency"),
	})
}

// Publisher 当前账本是否支持发布
func (a *App) Publisher() (registry.Publisher, bool) {
	p, ok := a.Registry.(registry.Publisher)
	return p, ok
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func initStore(ctx context.Context) (storage.Store, error) {
	switch viper.GetString("storage.type") {
	case "disk", "":
		path := viper.GetString("storage.path")
		if path == "" {
			return nil, fmt.Errorf("storage path not set")
		}
		return disk.NewAdapter(path, disk.WithCompression(viper.GetBool("storage.compress")))
	case "s3":
		bucket := viper.GetString("storage.s3.bucket")
		if bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required")
		}
		return s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("storage.s3.endpoint"),
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          bucket,
			AccessKeyID:     viper.GetString("storage.s3.access_key"),
			SecretAccessKey: viper.GetString("storage.s3.secret_key"),
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", viper.GetString("storage.type"))
	}
}

func (a *App) wrapCache(store storage.Store) (storage.Store, error) {
	url := viper.GetString("cache.redis_url")
	if url == "" {
		return store, nil
	}
	cached, err := cache.NewCachedStore(store, cache.Config{
		RedisURL: url,
		TTL:      viper.GetDuration("cache.ttl"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init redis cache: %w", err)
	}
	a.closers = append(a.closers, cached)
	return cached, nil
}

func (a *App) initDB(ctx context.Context) error {
	driver := viper.GetString("database.driver")
	if driver == "" || driver == "none" {
		return nil
	}
	cfg := meta.Config{
		Driver:   driver,
		Path:     viper.GetString("database.path"),
		Host:     viper.GetString("database.host"),
		Port:     viper.GetInt("database.port"),
		User:     viper.GetString("database.user"),
		Password: viper.GetString("database.password"),
		DBName:   viper.GetString("database.dbname"),
		SSLMode:  viper.GetString("database.sslmode"),
		Verbose:  viper.GetBool("database.verbose"),
	}
	if driver == "sqlite" && !strings.HasPrefix(cfg.Path, "file:") {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return fmt.Errorf("failed to create database dir: %w", err)
		}
	}
	db, err := meta.NewDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}
	a.DB = db
	a.Repo = meta.NewRepository(db)
	a.closers = append(a.closers, db)
	return nil
}

func (a *App) initLedger() error {
	var client registry.Client
	switch viper.GetString("ledger.type") {
	case "memory":
		a.Ledger = registry.NewMemory(registry.WithConfirmTimeout(viper.GetDuration("ledger.confirm_timeout")))
		client = a.Ledger
	case "grpc", "":
		gw, err := registry.DialGateway(viper.GetString("ledger.addr"), registry.GatewayOptions{
			ReadTimeout:    viper.GetDuration("ledger.read_timeout"),
			ConfirmTimeout: viper.GetDuration("ledger.confirm_timeout"),
		})
		if err != nil {
			return fmt.Errorf("failed to dial ledger gateway: %w", err)
		}
		a.closers = append(a.closers, gw)
		client = gw
	default:
		return fmt.Errorf("unsupported ledger type: %s", viper.GetString("ledger.type"))
	}

	if a.Repo != nil {
		a.Mirror = registry.NewMirror(client, a.Repo)
		client = a.Mirror
	}
	a.Registry = client
	return nil
}

// SetupLogger 按 log.level 配置全局 slog
func SetupLogger() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

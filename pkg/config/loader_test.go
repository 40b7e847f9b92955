package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	t.Chdir(t.TempDir())

	require.NoError(t, Load(""))
	assert.Equal(t, "grpc", viper.GetString("ledger.type"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("ledger.confirm_timeout"))
	assert.Equal(t, "disk", viper.GetString("storage.type"))
	assert.Equal(t, 1000, viper.GetInt("reward.fraction_bps"))
	assert.Equal(t, "consumer", viper.GetString("account.role"))
	assert.Empty(t, PeerAddrs())
}

func TestLoad_FileAndEnv(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
account:
  address: "0xABC"
  role: provider
ledger:
  confirm_timeout: 5s
peer:
  addr: "a:7070, b:7070,,"
`), 0644))
	t.Setenv("BP_LEDGER_ADDR", "ledger.example:9000")

	require.NoError(t, Load(cfg))
	assert.Equal(t, "0xABC", viper.GetString("account.address"))
	assert.Equal(t, "provider", viper.GetString("account.role"))
	assert.Equal(t, 5*time.Second, viper.GetDuration("ledger.confirm_timeout"))
	assert.Equal(t, "ledger.example:9000", viper.GetString("ledger.addr"), "env overrides defaults")
	assert.Equal(t, []string{"a:7070", "b:7070"}, PeerAddrs())
}

func TestLoad_MalformedFile(t *testing.T) {
	viper.Reset()
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("ledger: [unclosed"), 0644))

	err := Load(cfg)
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 9090
mysql:
  host: 127.0.0.1
  port: 3306
  user: ledger
  password: from-file
  database: wallet_ledger
kafka:
  brokers: ["127.0.0.1:9092"]
business:
  max_retry_count: 7
app_services:
  - id: s-server
    name: 云主机
    category: vms-server
  - id: s-storage
    name: 对象存储
    category: vms-object
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "from-file", cfg.MySQL.Password)
	assert.Equal(t, []string{"127.0.0.1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 7, cfg.Business.MaxRetryCount)
	require.Len(t, cfg.AppServices, 2)
	assert.Equal(t, "vms-object", cfg.AppServices[1].Category)

	// 未配置的项取默认值
	assert.EqualValues(t, 1, cfg.Server.NodeID)
	assert.Equal(t, "ledger.payment", cfg.Kafka.Topic.Payment)
	assert.Equal(t, 30, cfg.Business.RechargeWaitTimeoutMinutes)
	assert.Equal(t, []string{"vms-server"}, cfg.Business.VoAllowedCategories)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("LEDGER_MYSQL_PASSWORD", "from-env")
	t.Setenv("LEDGER_SERVER_PORT", "7070")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.MySQL.Password)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

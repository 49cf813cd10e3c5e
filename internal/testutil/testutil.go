// Package testutil 提供测试数据库和测试配置
package testutil

import (
	"os"
	"testing"

	"walletledger/internal/config"
	"walletledger/internal/infrastructure/database"
	"walletledger/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 创建迁移好的内存数据库
//
// 只保留一个连接：事务天然串行，内存库也不会因为连接回收而丢失。
// SQLite 不支持 FOR UPDATE，行锁语义由单连接保证。
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// MySQLDSNEnv 指向一个可清空的 MySQL 测试库，例如
// ledger:ledger@tcp(127.0.0.1:3306)/ledger_test?charset=utf8mb4&parseTime=True&loc=Local
const MySQLDSNEnv = "LEDGER_TEST_MYSQL_DSN"

// NewMySQLDB 连接真实 MySQL，用于验证 FOR UPDATE 和加锁顺序
//
// 未设置 LEDGER_TEST_MYSQL_DSN 时跳过测试。测试前后清空账本表。
func NewMySQLDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(MySQLDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", MySQLDSNEnv)
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(32)

	require.NoError(t, database.Migrate(db))
	truncate(t, db)
	t.Cleanup(func() {
		truncate(t, db)
		_ = sqlDB.Close()
	})
	return db
}

func truncate(t testing.TB, db *gorm.DB) {
	t.Helper()
	for _, m := range model.AllModels() {
		require.NoError(t, db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error)
	}
}

// NewConfig 测试用配置
func NewConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				Payment:  "ledger.payment",
				Refund:   "ledger.refund",
				Recharge: "ledger.recharge",
			},
		},
		Business: config.BusinessConfig{
			MaxRetryCount:              3,
			RechargeWaitTimeoutMinutes: 30,
			PayLockSeconds:             30,
			VoAllowedCategories:        []string{"vms-server"},
		},
		AppServices: []config.AppServiceConfig{
			{ID: "s-server", Name: "云主机", Category: "vms-server"},
			{ID: "s-storage", Name: "对象存储", Category: "vms-object"},
		},
	}
}

// D 解析金额，测试里书写更短
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// RequireDecimal 按数值比较金额，忽略末尾 0
func RequireDecimal(t testing.TB, expected string, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, D(expected).Equal(actual), "expected %s, got %s %v", expected, actual.String(), msgAndArgs)
}

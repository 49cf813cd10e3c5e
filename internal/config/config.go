package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
//
// 由 main 加载一次后通过构造函数注入各组件，不提供全局单例。
type Config struct {
	Server      ServerConfig       `mapstructure:"server"`
	MySQL       MySQLConfig        `mapstructure:"mysql"`
	Redis       RedisConfig        `mapstructure:"redis"`
	Kafka       KafkaConfig        `mapstructure:"kafka"`
	Business    BusinessConfig     `mapstructure:"business"`
	Log         LogConfig          `mapstructure:"log"`
	AppServices []AppServiceConfig `mapstructure:"app_services"`
}

type ServerConfig struct {
	Port   int   `mapstructure:"port"`
	NodeID int64 `mapstructure:"node_id"` // 雪花ID节点号
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Payment  string `mapstructure:"payment"`
	Refund   string `mapstructure:"refund"`
	Recharge string `mapstructure:"recharge"`
}

type BusinessConfig struct {
	MaxRetryCount              int      `mapstructure:"max_retry_count"`
	RechargeWaitTimeoutMinutes int      `mapstructure:"recharge_wait_timeout_minutes"`
	PayLockSeconds             int      `mapstructure:"pay_lock_seconds"`
	VoAllowedCategories        []string `mapstructure:"vo_allowed_categories"`
}

type LogConfig struct {
	Level string        `mapstructure:"level"`
	File  LogFileConfig `mapstructure:"file"`
}

type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AppServiceConfig 计费服务单元（券的适用范围）
type AppServiceConfig struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	Category string `mapstructure:"category"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.node_id", 1)
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("kafka.topic.payment", "ledger.payment")
	v.SetDefault("kafka.topic.refund", "ledger.refund")
	v.SetDefault("kafka.topic.recharge", "ledger.recharge")
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.recharge_wait_timeout_minutes", 30)
	v.SetDefault("business.pay_lock_seconds", 30)
	v.SetDefault("business.vo_allowed_categories", []string{"vms-server"})
	v.SetDefault("log.level", "info")
}

// LoadConfig 加载配置文件
//
// 先加载可选的 .env 文件，再读取 yaml；LEDGER_ 前缀的环境变量覆盖文件中的值，
// 例如 LEDGER_MYSQL_PASSWORD 覆盖 mysql.password。
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return cfg, nil
}

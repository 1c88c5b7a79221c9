package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`   // 服务器配置
	Postgres PostgresConfig `mapstructure:"postgres"` // PostgreSQL配置
	Tenhou   TenhouConfig   `mapstructure:"tenhou"`   // 天凤数据源配置
	Ingest   IngestConfig   `mapstructure:"ingest"`   // 采集调度配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// PostgresConfig PostgreSQL数据库配置
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
}

// TenhouConfig 天凤数据源配置
type TenhouConfig struct {
	LogURL       string `mapstructure:"log_url"`       // 牌谱JSON接口地址
	RecordsURL   string `mapstructure:"records_url"`   // 玩家战绩接口地址
	RefRegex     string `mapstructure:"ref_regex"`     // 牌谱ref正则（第一个捕获组为规范化ref）
	RecordsRegex string `mapstructure:"records_regex"` // 战绩响应正则（须包含records命名组）
	Timeout      int    `mapstructure:"timeout"`       // 请求超时（秒）
	RetryCount   int    `mapstructure:"retry_count"`   // 重试次数
	Proxy        string `mapstructure:"proxy"`         // 代理地址
}

// IngestConfig 采集调度配置
type IngestConfig struct {
	ThrottleCooldown time.Duration `mapstructure:"throttle_cooldown"` // 同一玩家两次战绩抓取的最小间隔
	PollInterval     time.Duration `mapstructure:"poll_interval"`     // 任务队列轮询间隔
	QueueMaxWorkers  int           `mapstructure:"queue_max_workers"` // 抓取队列最大并发
	WorkerSide       bool          `mapstructure:"worker_side"`       // 是否为worker进程（worker侧跳过队列自检）
}

// 缺省值：天凤的接口形态和牌谱ref格式是固定的，配置仅用于覆盖
const (
	DefaultLogURL       = "https://tenhou.net/0/log/"
	DefaultRecordsURL   = "https://tenhou.net/0/log/find.cgi"
	DefaultRefRegex     = `(\d{10}gm-[\da-f]{4}-[\da-f]{4}-[\da-z]+)`
	DefaultRecordsRegex = `(?s)<records>(?P<records>.*?)</records>`
)

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	setDefaults()
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	viper.SetTypeByDefaultValue(true)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("tenhou.log_url", DefaultLogURL)
	viper.SetDefault("tenhou.records_url", DefaultRecordsURL)
	viper.SetDefault("tenhou.ref_regex", DefaultRefRegex)
	viper.SetDefault("tenhou.records_regex", DefaultRecordsRegex)
	viper.SetDefault("tenhou.timeout", 15)
	viper.SetDefault("tenhou.retry_count", 1)
	viper.SetDefault("ingest.throttle_cooldown", 24*time.Hour)
	viper.SetDefault("ingest.poll_interval", 200*time.Millisecond)
	viper.SetDefault("ingest.queue_max_workers", 10)
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("TENHOU_PROXY"); v != "" {
		cfg.Tenhou.Proxy = v
	}
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述守护进程启动阶段需要加载的核心配置。
type Config struct {
	Server     ServerConfig     `json:"server"`
	Identity   IdentityConfig   `json:"identity"`
	Relay      RelayConfig      `json:"relay"`
	Signer     SignerConfig     `json:"signer"`
	Chain      ChainConfig      `json:"chain"`
	Guard      GuardConfig      `json:"guard"`
	Watcher    WatcherConfig    `json:"watcher"`
	Journal    JournalConfig    `json:"journal"`
	WatchQueue WatchQueueConfig `json:"watch_queue"`
	Logging    LoggingConfig    `json:"logging"`
	Alerting   AlertingConfig   `json:"alerting"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
	// APIToken 非空时，所有 API 请求必须携带该 Bearer Token。
	APIToken string `json:"api_token"`
}

// IdentityConfig 描述身份提供方的访问方式。
type IdentityConfig struct {
	BaseURL        string `json:"base_url"`
	TokenPath      string `json:"token_path"`
	UserInfoPath   string `json:"user_info_path"`
	SessionToken   string `json:"session_token"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// RelayConfig 描述交易中继服务的访问方式。
type RelayConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SignerConfig 描述签名提供方。rpc 模式将签名委托给节点或外部钱包，
// key 模式使用本地私钥。
type SignerConfig struct {
	Mode       string `json:"mode"`
	RPCURL     string `json:"rpc_url"`
	Account    string `json:"account"`
	PrivateKey string `json:"private_key"`
}

// ChainConfig 包含链访问所需的 RPC 端点配置。
type ChainConfig struct {
	// Definitions 指向多链定义的 YAML 文件。
	Definitions  string `json:"definitions"`
	DefaultChain string `json:"default_chain"`
	// RPCURL 在未提供多链定义时作为单链端点使用。
	RPCURL string `json:"rpc_url"`
}

// GuardConfig 描述 Safe 上要安装的 Guard 合约。
type GuardConfig struct {
	Address string `json:"address"`
}

// WatcherConfig 控制回执轮询的节奏与上限。
type WatcherConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
	MaxAttempts     int `json:"max_attempts"`
	Workers         int `json:"workers"`
}

// JournalConfig 描述流程日志的持久化后端。
type JournalConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// WatchQueueConfig 描述回执监听队列的驱动。
type WatchQueueConfig struct {
	Driver   string              `json:"driver"`
	Redis    RedisQueueConfig    `json:"redis"`
	RabbitMQ RabbitMQQueueConfig `json:"rabbitmq"`
}

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQQueueConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQQueueConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// LoggingConfig 控制结构化日志与审计日志输出。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	Audit       struct {
		Enabled    bool   `json:"enabled"`
		Path       string `json:"path"`
		MaxSizeMB  int    `json:"max_size_mb"`
		MaxBackups int    `json:"max_backups"`
		MaxAgeDays int    `json:"max_age_days"`
	} `json:"audit"`
}

// AlertingConfig 描述流程失败时的告警渠道。
type AlertingConfig struct {
	DingTalkWebhook string   `json:"dingtalk_webhook"`
	SlackWebhook    string   `json:"slack_webhook"`
	EmailTo         []string `json:"email_to"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Identity.TokenPath == "" {
		c.Identity.TokenPath = "/token"
	}
	if c.Identity.UserInfoPath == "" {
		c.Identity.UserInfoPath = "/userinfo"
	}
	if c.Identity.TimeoutSeconds <= 0 {
		c.Identity.TimeoutSeconds = 10
	}

	if c.Relay.TimeoutSeconds <= 0 {
		c.Relay.TimeoutSeconds = 15
	}

	if c.Signer.Mode == "" {
		c.Signer.Mode = "rpc"
	}

	if c.Chain.Definitions != "" && !filepath.IsAbs(c.Chain.Definitions) {
		c.Chain.Definitions = filepath.Join(baseDir, c.Chain.Definitions)
	}

	if c.Watcher.IntervalSeconds <= 0 {
		c.Watcher.IntervalSeconds = 3
	}
	if c.Watcher.MaxAttempts <= 0 {
		c.Watcher.MaxAttempts = 40
	}
	if c.Watcher.Workers <= 0 {
		c.Watcher.Workers = 1
	}

	if c.Journal.Driver == "" {
		c.Journal.Driver = "memory"
	}
	if c.WatchQueue.Driver == "" {
		c.WatchQueue.Driver = "memory"
	}
}

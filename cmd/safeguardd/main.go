package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"SafeGuard-Console/internal/api"
	"SafeGuard-Console/internal/chain"
	"SafeGuard-Console/internal/config"
	"SafeGuard-Console/internal/custody"
	"SafeGuard-Console/internal/identity"
	"SafeGuard-Console/internal/observability/alerting"
	"SafeGuard-Console/internal/relay"
	"SafeGuard-Console/internal/signer"
	"SafeGuard-Console/pkg/logger"
)

// main 是 SafeGuard 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("safeguardd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("SAFEGUARD_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "safeguard.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	chainRegistry, err := chain.NewRegistry(ctx, cfg.Chain)
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	chainClient, err := chainRegistry.DefaultClient()
	if err != nil {
		return err
	}

	signingProvider, err := createSigner(ctx, cfg, chainClient)
	if err != nil {
		return err
	}

	identityProvider, err := identity.NewHTTPProvider(cfg.Identity)
	if err != nil {
		return err
	}

	relayClient, err := relay.NewClient(cfg.Relay.BaseURL, &http.Client{
		Timeout: time.Duration(cfg.Relay.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	var journal custody.Journal
	switch cfg.Journal.Driver {
	case "", "memory":
		journal = custody.NewMemoryJournal()
	case "mysql":
		journal, err = custody.NewMySQLJournal(cfg.Journal.DSN)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("未知的流程日志驱动: %s", cfg.Journal.Driver)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			log.Printf("关闭流程日志失败: %v", err)
		}
	}()

	var watchQueue custody.WatchQueue
	switch cfg.WatchQueue.Driver {
	case "", "memory":
		watchQueue = custody.NewMemoryWatchQueue(256)
	case "redis":
		watchQueue, err = custody.NewRedisWatchQueue(custody.RedisWatchQueueConfig{
			Address:   cfg.WatchQueue.Redis.Address,
			Password:  cfg.WatchQueue.Redis.Password,
			DB:        cfg.WatchQueue.Redis.DB,
			Queue:     cfg.WatchQueue.Redis.Queue,
			BlockWait: time.Duration(cfg.WatchQueue.Redis.BlockWait) * time.Second,
		})
		if err != nil {
			return err
		}
	case "rabbitmq":
		watchQueue, err = custody.NewRabbitMQWatchQueue(custody.RabbitMQWatchQueueConfig{
			URL:        cfg.WatchQueue.RabbitMQ.URL,
			Queue:      cfg.WatchQueue.RabbitMQ.Queue,
			Prefetch:   cfg.WatchQueue.RabbitMQ.Prefetch,
			Durable:    cfg.WatchQueue.RabbitMQ.Durable,
			AutoDelete: cfg.WatchQueue.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("未知的观察队列驱动: %s", cfg.WatchQueue.Driver)
	}
	defer func() {
		if err := watchQueue.Close(); err != nil {
			log.Printf("关闭观察队列失败: %v", err)
		}
	}()

	orch, err := custody.NewOrchestrator(
		relayClient,
		identityProvider,
		signingProvider,
		cfg.Guard.Address,
		journal,
		watchQueue,
		custody.WithBalanceReader(chainClient),
	)
	if err != nil {
		return err
	}

	watcher, err := custody.NewWatcher(chainClient, journal, watchQueue, orch.Board(),
		createAlertDispatcher(cfg.Alerting), custody.WatcherConfig{
			Interval:    time.Duration(cfg.Watcher.IntervalSeconds) * time.Second,
			MaxAttempts: cfg.Watcher.MaxAttempts,
			Workers:     cfg.Watcher.Workers,
		})
	if err != nil {
		return err
	}

	watcherCtx, watcherCancel := context.WithCancel(ctx)
	defer watcherCancel()
	go func() {
		if err := watcher.Run(watcherCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("回执观察者异常退出", slog.Any("error", err))
		}
	}()

	server := api.NewServer(cfg.Server.Address, orch, cfg.Server.APIToken)

	logger.L().Info("safeguardd 启动",
		slog.String("address", cfg.Server.Address),
		slog.String("journal", cfg.Journal.Driver),
		slog.String("watch_queue", cfg.WatchQueue.Driver),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// createSigner 根据配置选择 RPC 委托签名或本地私钥签名。
func createSigner(ctx context.Context, cfg *config.Config, chainClient *chain.Client) (signer.Signer, error) {
	switch cfg.Signer.Mode {
	case "", "rpc":
		rpcClient := chainClient.RawClient()
		if cfg.Signer.RPCURL != "" {
			signerChain, err := chain.NewClient(ctx, chain.ClientConfig{Name: "signer", RPCURL: cfg.Signer.RPCURL})
			if err != nil {
				return nil, err
			}
			rpcClient = signerChain.RawClient()
		}
		return signer.NewRPCSigner(ctx, rpcClient, cfg.Signer.Account)
	case "key":
		return signer.NewKeySigner(cfg.Signer.PrivateKey, chainClient)
	default:
		return nil, fmt.Errorf("未知的签名模式: %s", cfg.Signer.Mode)
	}
}

// createAlertDispatcher 按配置组装告警渠道, 没有任何渠道时返回 nil。
func createAlertDispatcher(cfg config.AlertingConfig) alerting.Dispatcher {
	var notifiers []alerting.Notifier
	if cfg.DingTalkWebhook != "" {
		notifiers = append(notifiers, &alerting.DingTalkNotifier{
			Sender: alerting.NewWebhookSender(cfg.DingTalkWebhook),
		})
	}
	if cfg.SlackWebhook != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{
			Sender:    alerting.NewSlackWebhook(cfg.SlackWebhook),
			ChannelID: "alerts",
		})
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}

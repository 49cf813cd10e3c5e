package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"walletledger/internal/config"
	"walletledger/internal/handler"
	"walletledger/internal/infrastructure/cache"
	"walletledger/internal/infrastructure/database"
	"walletledger/internal/infrastructure/lock"
	"walletledger/internal/infrastructure/mq"
	"walletledger/internal/job"
	"walletledger/internal/service"
	"walletledger/pkg/idgen"
	"walletledger/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("服务异常退出", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	idgen.Init(cfg.Server.NodeID)

	db, err := database.InitMySQL(&cfg.MySQL, log)
	if err != nil {
		return err
	}

	redisClient, err := cache.InitRedis(&cfg.Redis, log)
	if err != nil {
		return err
	}
	var locker lock.OwnerLocker = lock.NoopOwnerLocker{}
	if redisClient != nil {
		defer redisClient.Close()
		locker = lock.NewRedisOwnerLocker(redisClient, time.Duration(cfg.Business.PayLockSeconds)*time.Second)
	}

	producer, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		return err
	}
	defer producer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 后台任务
	rechargeService := service.NewRechargeService(db, locker, cfg, log)

	outboxSender := job.NewOutboxSender(db, producer, cfg, log)
	go outboxSender.Start(ctx)

	timeoutJob := job.NewRechargeTimeoutJob(rechargeService, cfg, log)
	go timeoutJob.Start(ctx)

	compensateJob := job.NewRechargeCompensateJob(rechargeService, log)
	go compensateJob.Start(ctx)

	router := handler.SetupRouter(db, locker, cfg, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("服务启动失败: %w", err)
	}

	log.Info("正在关闭服务...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("服务关闭异常", zap.Error(err))
	}

	log.Info("服务已关闭")
	return nil
}

package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Johnnas12/chatbot-ui-galaxy/internal/config"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/events"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/model"
	mysqlClient "github.com/Johnnas12/chatbot-ui-galaxy/internal/platform/mysql"
	rabbitmqClient "github.com/Johnnas12/chatbot-ui-galaxy/internal/platform/rabbitmq"
	redisClient "github.com/Johnnas12/chatbot-ui-galaxy/internal/platform/redis"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/store"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/worker"
)

type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	Registry    *store.Registry
	Hub         *events.Hub
	EventWorker *worker.SessionEventWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	logger, err := newLogger(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("build logger failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(&model.User{}, &model.ChatSession{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	registry := store.NewRegistry()
	hub := events.NewHub()
	eventWorker := worker.NewSessionEventWorker(mqConn, registry, hub, cfg.RabbitMQ.SessionEventQueue, logger)
	if err := eventWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start session event worker failed: %w", err)
	}

	return &App{
		Config:      cfg,
		Logger:      logger,
		MySQL:       mysqlDB,
		Redis:       redisCli,
		MQConn:      mqConn,
		Registry:    registry,
		Hub:         hub,
		EventWorker: eventWorker,
		StartedAt:   time.Now(),
	}, nil
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "prod" || env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func (a *App) Close() error {
	var closeErr error
	if a.EventWorker != nil {
		a.EventWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}

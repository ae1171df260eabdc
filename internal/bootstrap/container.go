package bootstrap

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/taskrelay/server/internal/ai"
	"github.com/taskrelay/server/internal/auth"
	"github.com/taskrelay/server/internal/config"
	"github.com/taskrelay/server/internal/effector"
	"github.com/taskrelay/server/internal/infra/blob"
	"github.com/taskrelay/server/internal/infra/cache"
	"github.com/taskrelay/server/internal/infra/db"
	"github.com/taskrelay/server/internal/infra/logger"
	"github.com/taskrelay/server/internal/infra/queue"
	"github.com/taskrelay/server/internal/modules/handler"
	"github.com/taskrelay/server/internal/modules/model"
	"github.com/taskrelay/server/internal/modules/repo"
	"github.com/taskrelay/server/internal/modules/service"
	"github.com/taskrelay/server/internal/pkg/editor"
	"github.com/taskrelay/server/internal/realtime"
)

// BuildContainer registers every component lazily. Redis, RabbitMQ and S3
// are optional: their providers yield nil when unconfigured and consumers
// skip them.
func BuildContainer() *do.Injector {
	inj := do.New()

	// config
	do.Provide(inj, func(i *do.Injector) (*viper.Viper, error) {
		return config.New()
	})
	do.Provide(inj, func(i *do.Injector) (*config.Config, error) {
		return config.Decode(do.MustInvoke[*viper.Viper](i))
	})

	// logger
	do.Provide(inj, func(i *do.Injector) (*zap.Logger, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return logger.New(cfg.Log.Level)
	})

	// DB
	do.Provide(inj, func(i *do.Injector) (*gorm.DB, error) {
		cfg := do.MustInvoke[*config.Config](i)
		d, err := db.New(cfg)
		if err != nil {
			return nil, err
		}
		// [optional] auto migrate
		if cfg.Database.AutoMigrate {
			if err := d.AutoMigrate(
				&model.User{},
				&model.Session{},
				&model.Task{},
				&model.Message{},
			); err != nil {
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
		}
		return d, nil
	})

	// Redis
	do.Provide(inj, func(i *do.Injector) (*redis.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if cfg.Redis.Addr == "" {
			return nil, nil
		}
		return cache.New(cfg)
	})
	do.Provide(inj, func(i *do.Injector) (*cache.TaskCache, error) {
		rdb := do.MustInvoke[*redis.Client](i)
		if rdb == nil {
			return nil, nil
		}
		return cache.NewTaskCache(rdb, do.MustInvoke[*config.Config](i).Redis.TaskTTL()), nil
	})

	// RabbitMQ
	do.Provide(inj, func(i *do.Injector) (*amqp.Connection, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if cfg.RabbitMQ.URL == "" {
			return nil, nil
		}
		return amqp.Dial(cfg.RabbitMQ.URL)
	})
	do.Provide(inj, func(i *do.Injector) (*queue.Publisher, error) {
		conn := do.MustInvoke[*amqp.Connection](i)
		if conn == nil {
			return nil, nil
		}
		cfg := do.MustInvoke[*config.Config](i)
		return queue.NewPublisher(conn, cfg.RabbitMQ.Exchange, do.MustInvoke[*zap.Logger](i))
	})

	// S3
	do.Provide(inj, func(i *do.Injector) (*blob.S3Deps, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if cfg.S3.Bucket == "" {
			return nil, nil
		}
		return blob.NewS3(context.Background(), cfg)
	})

	// Repo
	do.Provide(inj, func(i *do.Injector) (repo.TaskRepo, error) {
		return repo.NewTaskRepo(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (repo.MessageRepo, error) {
		return repo.NewMessageRepo(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (repo.AuthRepo, error) {
		return repo.NewAuthRepo(do.MustInvoke[*gorm.DB](i)), nil
	})

	// AI
	do.Provide(inj, func(i *do.Injector) (*ai.Router, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.Logger](i)
		timeout := cfg.AI.Timeout()
		return ai.NewRouter(log,
			ai.NewAnthropicService(ai.Options{APIKey: cfg.AI.AnthropicAPIKey, BaseURL: cfg.AI.AnthropicBaseURL, Timeout: timeout}, log),
			ai.NewOpenAIService(ai.Options{APIKey: cfg.AI.OpenAIAPIKey, BaseURL: cfg.AI.OpenAIBaseURL, Timeout: timeout}, log),
			ai.NewGoogleService(ai.Options{APIKey: cfg.AI.GoogleAPIKey, BaseURL: cfg.AI.GoogleBaseURL, Timeout: timeout}, log),
		), nil
	})

	// realtime
	do.Provide(inj, func(i *do.Injector) (*realtime.Hub, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return realtime.NewHub(realtime.HubOptions{
			SendBuffer:   cfg.Gateway.SendBuffer,
			WriteTimeout: cfg.Gateway.WriteTimeout(),
			PingInterval: cfg.Gateway.PingInterval(),
		}, do.MustInvoke[*zap.Logger](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (*realtime.Gateway, error) {
		return realtime.NewGateway(
			realtime.NewRegistry(),
			do.MustInvoke[*realtime.Hub](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})

	// Service
	do.Provide(inj, func(i *do.Injector) (*service.Notifier, error) {
		// nil pointers must not become non-nil interfaces
		var pub service.EventPublisher
		if p := do.MustInvoke[*queue.Publisher](i); p != nil {
			pub = p
		}
		return service.NewNotifier(
			do.MustInvoke[*realtime.Gateway](i),
			pub,
			taskCache(i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (effector.Effector, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return effector.NewHTTP(cfg.Effector.BaseURL, cfg.Effector.Timeout(), do.MustInvoke[*zap.Logger](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (*service.Executor, error) {
		cfg := do.MustInvoke[*config.Config](i)
		strategy, err := editor.CreateStrategy(editor.StrategyConfig{
			Type:   "remove_tool_use_inputs",
			Params: map[string]any{"keep_recent_n_tool_uses": cfg.Executor.KeepRecentToolInputs},
		})
		if err != nil {
			return nil, err
		}
		return service.NewExecutor(service.ExecutorDeps{
			Tasks:    do.MustInvoke[repo.TaskRepo](i),
			Messages: do.MustInvoke[repo.MessageRepo](i),
			Router:   do.MustInvoke[*ai.Router](i),
			Effector: do.MustInvoke[effector.Effector](i),
			Notifier: do.MustInvoke[*service.Notifier](i),
			Archiver: archiver(i),
			Log:      do.MustInvoke[*zap.Logger](i),
		}, service.ExecutorOptions{
			Workers:      cfg.Executor.Workers,
			QueueSize:    cfg.Executor.QueueSize,
			MaxTurns:     cfg.Executor.MaxTurns,
			SystemPrompt: cfg.AI.SystemPrompt,
			Edits:        []editor.EditStrategy{strategy},
		}), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.TaskService, error) {
		return service.NewTaskService(service.TaskServiceDeps{
			Tasks:      do.MustInvoke[repo.TaskRepo](i),
			Messages:   do.MustInvoke[repo.MessageRepo](i),
			Router:     do.MustInvoke[*ai.Router](i),
			Notifier:   do.MustInvoke[*service.Notifier](i),
			Cache:      taskCache(i),
			Archiver:   archiver(i),
			Dispatcher: do.MustInvoke[*service.Executor](i),
			Log:        do.MustInvoke[*zap.Logger](i),
		}), nil
	})
	do.Provide(inj, func(i *do.Injector) (*service.Scheduler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return service.NewScheduler(
			do.MustInvoke[repo.TaskRepo](i),
			do.MustInvoke[*service.Executor](i),
			cfg.Scheduler.PollInterval(),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (auth.Service, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if cfg.Auth.Enabled && cfg.Auth.JWTSecret == "" {
			return nil, fmt.Errorf("auth is enabled but auth.jwtSecret is empty")
		}
		return auth.NewService(do.MustInvoke[repo.AuthRepo](i), auth.Options{
			Enabled:  cfg.Auth.Enabled,
			Secret:   cfg.Auth.JWTSecret,
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
		}, do.MustInvoke[*zap.Logger](i)), nil
	})

	// Handler
	do.Provide(inj, func(i *do.Injector) (*handler.TaskHandler, error) {
		return handler.NewTaskHandler(do.MustInvoke[service.TaskService](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (*handler.WSHandler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return handler.NewWSHandler(
			do.MustInvoke[*realtime.Hub](i),
			do.MustInvoke[*realtime.Gateway](i),
			do.MustInvoke[auth.Service](i),
			do.MustInvoke[*service.Executor](i),
			cfg.Gateway.AllowedOrigins,
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (*handler.HealthHandler, error) {
		sqlDB, err := do.MustInvoke[*gorm.DB](i).DB()
		if err != nil {
			return nil, err
		}
		return handler.NewHealthHandler(
			do.MustInvoke[*config.Config](i).App.Name,
			sqlDB,
			do.MustInvoke[*ai.Router](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})

	return inj
}

func taskCache(i *do.Injector) service.TaskCache {
	if c := do.MustInvoke[*cache.TaskCache](i); c != nil {
		return c
	}
	return nil
}

func archiver(i *do.Injector) service.Archiver {
	if s := do.MustInvoke[*blob.S3Deps](i); s != nil {
		return s
	}
	return nil
}

package main

//	@title			taskrelay API
//	@version		1.0
//	@description	Task execution relay between users, AI models and a desktop effector.
//	@schemes		http https
//	@BasePath		/api/v1

//  Bearer at session level
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session Bearer token (e.g., "Bearer eyJhbGciOi...")

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/taskrelay/server/internal/ai"
	"github.com/taskrelay/server/internal/auth"
	"github.com/taskrelay/server/internal/bootstrap"
	"github.com/taskrelay/server/internal/config"
	"github.com/taskrelay/server/internal/infra/cache"
	dbpkg "github.com/taskrelay/server/internal/infra/db"
	"github.com/taskrelay/server/internal/infra/logger"
	"github.com/taskrelay/server/internal/infra/queue"
	"github.com/taskrelay/server/internal/modules/handler"
	"github.com/taskrelay/server/internal/modules/service"
	"github.com/taskrelay/server/internal/router"
	"github.com/taskrelay/server/internal/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "taskrelay",
		Short:         "Relay tasks between users, AI models and a desktop effector",
		Version:       telemetry.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, websocket gateway, executor and scheduler",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "models",
			Short: "List the models each configured provider offers",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return listModels(cmd)
			},
		},
	)
	return root
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// build dependency injection container
	inj := bootstrap.BuildContainer()

	cfg, err := do.Invoke[*config.Config](inj)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := do.Invoke[*zap.Logger](inj)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	db, err := do.Invoke[*gorm.DB](inj)
	if err != nil {
		log.Sugar().Errorw("database unavailable", "err", err)
		return err
	}
	rdb := do.MustInvoke[*redis.Client](inj)

	config.Watch(do.MustInvoke[*viper.Viper](inj), func(next *config.Config, err error) {
		if err != nil {
			log.Sugar().Warnw("config reload failed", "err", err)
			return
		}
		if err := logger.SetLevel(next.Log.Level); err != nil {
			log.Sugar().Warnw("invalid log level in reloaded config", "level", next.Log.Level, "err", err)
			return
		}
		log.Sugar().Infow("config reloaded", "log_level", next.Log.Level)
	})

	tp, err := telemetry.SetupTracing(cfg)
	if err != nil {
		log.Sugar().Warnw("failed to setup tracing, continuing without tracing", "err", err)
	} else if tp != nil {
		log.Sugar().Infow("OpenTelemetry tracing enabled", "endpoint", cfg.Telemetry.OtlpEndpoint)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := telemetry.Shutdown(ctx); err != nil {
				log.Sugar().Errorw("failed to shutdown tracer", "err", err)
			}
		}()

		if err := dbpkg.RegisterOpenTelemetryPlugin(db); err != nil {
			log.Sugar().Warnw("failed to register GORM OpenTelemetry plugin, continuing without database tracing", "err", err)
		}
		if rdb != nil {
			if err := cache.RegisterOpenTelemetryPlugin(rdb); err != nil {
				log.Sugar().Warnw("failed to register Redis OpenTelemetry plugin, continuing without Redis tracing", "err", err)
			}
		}
	}

	if !do.MustInvoke[*ai.Router](inj).IsAvailable() {
		log.Sugar().Warn("no AI provider has an API key, tasks will fail until one is configured")
	}

	// init gin
	gin.SetMode(cfg.App.Env)

	engine := router.NewRouter(router.RouterDeps{
		Config:        cfg,
		Log:           log,
		Auth:          do.MustInvoke[auth.Service](inj),
		TaskHandler:   do.MustInvoke[*handler.TaskHandler](inj),
		WSHandler:     do.MustInvoke[*handler.WSHandler](inj),
		HealthHandler: do.MustInvoke[*handler.HealthHandler](inj),
	})
	executor := do.MustInvoke[*service.Executor](inj)
	scheduler := do.MustInvoke[*service.Scheduler](inj)
	if pub := do.MustInvoke[*queue.Publisher](inj); pub != nil {
		defer func() { _ = pub.Close() }()
	}

	addr := fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port)
	srv := &http.Server{Addr: addr, Handler: engine, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Sugar().Infow("starting http server", "addr", addr)
		log.Sugar().Infow("swagger url", "url", addr+"/swagger/index.html")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error { return executor.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })

	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Sugar().Errorw("server shutdown", "err", err)
		}
		return nil
	})

	err = g.Wait()
	if err != nil {
		log.Sugar().Errorw("server stopped with error", "err", err)
	}
	log.Sugar().Info("server exited")
	return err
}

func listModels(cmd *cobra.Command) error {
	inj := bootstrap.BuildContainer()
	models, err := do.Invoke[*ai.Router](inj)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tMODEL\tTITLE\tAVAILABLE")
	for _, m := range models.ListAllModels() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", m.Provider, m.Name, m.Title, m.Available)
	}
	return w.Flush()
}

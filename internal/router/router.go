package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/taskrelay/server/docs"
	"github.com/taskrelay/server/internal/auth"
	"github.com/taskrelay/server/internal/config"
	"github.com/taskrelay/server/internal/middleware"
	"github.com/taskrelay/server/internal/modules/handler"
	"github.com/taskrelay/server/internal/modules/serializer"
)

type RouterDeps struct {
	Config        *config.Config
	Log           *zap.Logger
	Auth          auth.Service
	TaskHandler   *handler.TaskHandler
	WSHandler     *handler.WSHandler
	HealthHandler *handler.HealthHandler
}

func NewRouter(d RouterDeps) *gin.Engine {
	serializer.SetLogger(d.Log)

	r := gin.New()
	r.Use(gin.Recovery())

	if d.Config.Telemetry.Enabled && d.Config.Telemetry.OtlpEndpoint != "" {
		r.Use(middleware.OtelTracing(d.Config.App.Name))
		r.Use(middleware.TraceID())
	}

	r.Use(middleware.ZapLogger(d.Log))

	// health
	health := r.Group("/health")
	{
		health.GET("", d.HealthHandler.Health)
		health.GET("/live", d.HealthHandler.Live)
		health.GET("/ready", d.HealthHandler.Ready)
		health.GET("/detailed", d.HealthHandler.Detailed)
	}

	// swagger
	r.GET("/swagger", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		v1.Use(middleware.Auth(d.Auth))

		v1.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, serializer.Response{Msg: "pong"}) })

		tasks := v1.Group("/tasks")
		{
			tasks.POST("", d.TaskHandler.CreateTask)
			tasks.GET("", d.TaskHandler.ListTasks)

			tasks.GET("/models", d.TaskHandler.ListModels)
			tasks.GET("/counts", d.TaskHandler.CountTasks)

			tasks.GET("/:task_id", d.TaskHandler.GetTask)
			tasks.PATCH("/:task_id", d.TaskHandler.UpdateTask)
			tasks.DELETE("/:task_id", d.TaskHandler.DeleteTask)

			tasks.POST("/:task_id/takeover", d.TaskHandler.TakeoverTask)
			tasks.POST("/:task_id/resume", d.TaskHandler.ResumeTask)
			tasks.POST("/:task_id/cancel", d.TaskHandler.CancelTask)

			tasks.GET("/:task_id/messages", d.TaskHandler.ListMessages)
			tasks.GET("/:task_id/messages/raw", d.TaskHandler.ListRawMessages)
			tasks.GET("/:task_id/messages/processed", d.TaskHandler.ListProcessedMessages)
			tasks.POST("/:task_id/messages", d.TaskHandler.AddMessage)
		}
	}

	// the upgrade checks its own token since browsers cannot set headers on it
	r.GET("/ws", middleware.RequireUpgrade(), d.WSHandler.Connect)
	r.GET("/ws/stats", middleware.Auth(d.Auth), d.WSHandler.Stats)

	return r
}

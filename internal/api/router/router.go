package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mplazax/software-engineering-agh-sub000/config"
	"github.com/mplazax/software-engineering-agh-sub000/internal/api/handler"
	"github.com/mplazax/software-engineering-agh-sub000/internal/api/middleware"
	"github.com/mplazax/software-engineering-agh-sub000/internal/dto"
	"github.com/mplazax/software-engineering-agh-sub000/pkg/jwt"
	"github.com/mplazax/software-engineering-agh-sub000/pkg/redis"
)

// Pinger 健康检查依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps 路由所需的外部依赖
type Deps struct {
	JWT      *jwt.Manager
	Redis    *redis.Client // 可为 nil
	DB       Pinger
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := dto.RegisterValidations(v); err != nil {
			deps.Logger.Fatal("注册自定义校验规则失败", zap.Error(err))
		}
	}

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Metrics(middleware.NewHTTPMetrics(deps.Registry)))
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing())
	}
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"status": "ok", "db": "ok"}
		code := http.StatusOK
		if err := deps.DB.Ping(ctx); err != nil {
			status["status"], status["db"] = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}
		if deps.Redis != nil {
			status["redis"] = "ok"
			if err := deps.Redis.Ping(ctx); err != nil {
				// Redis 只影响跨实例锁与黑名单，不判为不可用
				status["redis"] = err.Error()
			}
		}
		c.JSON(code, status)
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry})))

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(deps.JWT, deps.Redis, deps.Logger))
	if cfg.Server.RateLimit > 0 {
		v1.Use(middleware.RateLimit(deps.Redis, cfg.Server.RateLimit, time.Minute, deps.Logger))
	}
	{
		// 认证模块
		auth := v1.Group("/auth")
		{
			auth.POST("/logout", h.Auth.Logout)
			auth.GET("/me", h.Auth.Me)
		}

		// 调课申请
		changeRequests := v1.Group("/change-requests")
		{
			changeRequests.POST("", h.Negotiation.CreateChangeRequest)
			changeRequests.GET("", h.Negotiation.ListChangeRequests)
			changeRequests.GET("/stats", h.Negotiation.Stats)
			changeRequests.GET("/:id", h.Negotiation.GetChangeRequest)
			changeRequests.GET("/:id/logs", h.Negotiation.ListLogs)
			changeRequests.POST("/:id/reject", h.Negotiation.RejectRequest)
			changeRequests.POST("/:id/cancel", h.Negotiation.CancelRequest)
		}

		// 可用时间
		availability := v1.Group("/availability")
		{
			availability.POST("", h.Negotiation.SubmitAvailability)
			availability.GET("/:id", h.Negotiation.ListProposals)
		}

		// 推荐方案（生成与查看以调课申请 ID 为参数，决策以推荐方案 ID 为参数）
		recommendations := v1.Group("/recommendations")
		{
			recommendations.POST("/:id", h.Negotiation.GenerateRecommendations)
			recommendations.GET("/:id", h.Negotiation.ListRecommendations)
			recommendations.POST("/:id/accept", h.Negotiation.AcceptRecommendation)
			recommendations.POST("/:id/reject", h.Negotiation.RejectRecommendation)
		}

		// 导出
		v1.GET("/export/change-requests/:id", h.Export.ExportChangeRequest)

		// 只读目录
		v1.GET("/time-slots", h.Catalog.ListTimeSlots)
		v1.GET("/rooms", h.Catalog.ListRooms)
	}

	return r
}

package http

import (
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	httpH "github.com/vladislavdragonenkov/sales/internal/http/handlers"
	httpMW "github.com/vladislavdragonenkov/sales/internal/http/middleware"
	"github.com/vladislavdragonenkov/sales/internal/http/response"
	"github.com/vladislavdragonenkov/sales/internal/metrics"
)

// RouterConfig собирает зависимости REST API.
type RouterConfig struct {
	SaleHandler *httpH.SaleHandler

	// Idempotency включает поддержку Idempotency-Key для создания продаж.
	Idempotency    domain.IdempotencyRepository
	IdempotencyTTL time.Duration

	Metrics     *metrics.HTTPMetrics
	CORSOrigins []string
	Logger      *log.Entry
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.RequestLogger(cfg.Logger))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	r.NoRoute(func(c *gin.Context) {
		response.RespondStatus(c, nethttp.StatusNotFound, "Resource not found")
	})

	api := r.Group("/api")
	if cfg.SaleHandler != nil {
		h := cfg.SaleHandler
		salesGroup := api.Group("/sales")
		salesGroup.POST("", httpMW.Idempotency(cfg.Idempotency, cfg.IdempotencyTTL, cfg.Logger), h.CreateSale)
		salesGroup.GET("", h.ListSales)
		salesGroup.GET("/:id", h.GetSale)
		salesGroup.PUT("/:id", h.UpdateSale)
		salesGroup.DELETE("/:id", h.DeleteSale)
		salesGroup.POST("/:id/cancel", h.CancelSale)
		salesGroup.POST("/:id/items/:itemId/cancel", h.CancelItem)
		salesGroup.GET("/:id/timeline", h.Timeline)
	}

	return r
}

// Server держит gin-движок вместе с net/http сервером для graceful shutdown.
type Server struct {
	Engine *gin.Engine
	HTTP   *nethttp.Server
}

func NewServer(addr string, cfg RouterConfig) *Server {
	engine := NewRouter(cfg)
	return &Server{
		Engine: engine,
		HTTP: &nethttp.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	chatdomain "github.com/iamafoodie/buddy/internal/chat/domain"
	"github.com/iamafoodie/buddy/internal/config"
	inboxdomain "github.com/iamafoodie/buddy/internal/inbox/domain"
	"github.com/iamafoodie/buddy/internal/observability"
	obsmiddleware "github.com/iamafoodie/buddy/internal/observability/logger"
	obsmetrics "github.com/iamafoodie/buddy/internal/observability/metrics"
	obstracing "github.com/iamafoodie/buddy/internal/observability/tracing"
	paymentdomain "github.com/iamafoodie/buddy/internal/payment/domain"
	"github.com/iamafoodie/buddy/internal/payment/extract"
	"github.com/iamafoodie/buddy/internal/providers/whatsapp"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, metrics *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(metrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, metrics *obsmetrics.Metrics) *gin.Engine {
	return NewEngine(obsCfg, metrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	extractor  *extract.Extractor
	paymentSvc paymentdomain.Service
	chatSvc    chatdomain.Service
	inboxRepo  inboxdomain.Repository
	sender     whatsapp.Provider
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	Extractor  *extract.Extractor
	PaymentSvc paymentdomain.Service
	ChatSvc    chatdomain.Service
	InboxRepo  inboxdomain.Repository
	Sender     whatsapp.Provider
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("server"),
		extractor:  p.Extractor,
		paymentSvc: p.PaymentSvc,
		chatSvc:    p.ChatSvc,
		inboxRepo:  p.InboxRepo,
		sender:     p.Sender,
	}

	svc.registerPaymentRoutes()
	svc.registerWhatsAppRoutes()
	svc.registerInternalRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPaymentRoutes() {
	s.engine.GET("/plugpay", s.PaymentMountCheck)
	s.engine.POST("/plugpay/webhook", s.PaymentWebhook)
	s.engine.GET("/plugpay/webhook", s.PaymentWebhookProbe)
	s.engine.HEAD("/plugpay/webhook", s.PaymentWebhookProbe)
}

func (s *Server) registerWhatsAppRoutes() {
	s.engine.GET("/whatsapp/webhook", s.WhatsAppVerify)
	s.engine.POST("/whatsapp/webhook", s.WhatsAppWebhook)
	s.engine.POST("/whatsapp/send", s.WhatsAppSend)
}

func (s *Server) registerInternalRoutes() {
	s.engine.POST("/internal/housekeeping/delivery-records", s.PurgeDeliveryRecords)
}

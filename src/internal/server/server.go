package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/admi-n/auditgpt/src/internal/handler"
	"github.com/admi-n/auditgpt/src/internal/monitor"
)

// Jobs 审计任务编排
type Jobs interface {
	Start(ctx context.Context, req handler.Request) (<-chan struct{}, error)
	Snapshot() handler.Snapshot
	Reset() error
}

// Monitor 合约监控
type Monitor interface {
	Add(address, name string) (monitor.Contract, error)
	Remove(address string) bool
	Toggle(address string) (monitor.Contract, bool)
	Contracts() []monitor.Contract
	Feed() []monitor.Event
	Chart() []monitor.ChartPoint
	AlertConfig() monitor.AlertConfig
	SetAlertConfig(cfg monitor.AlertConfig)
}

type Dependencies struct {
	Jobs    Jobs
	Monitor Monitor
	Logger  zerolog.Logger
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Dependencies    Dependencies
}

type WebAPI struct {
	router          *chi.Mux
	logger          *zerolog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

// ConfigureRouter 注册全部路由
func ConfigureRouter(config Config) *chi.Mux {
	logger := config.Dependencies.Logger
	h := &Handler{jobs: config.Dependencies.Jobs, monitor: config.Dependencies.Monitor}

	router := chi.NewRouter()
	router.Use(RequestLogger(&logger))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", h.Health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", h.StartJob)
		r.Get("/jobs/current", h.CurrentJob)
		r.Delete("/jobs/current", h.ResetJob)
		r.Get("/jobs/current/report", h.JobReport)

		r.Get("/monitor/contracts", h.ListContracts)
		r.Post("/monitor/contracts", h.AddContract)
		r.Delete("/monitor/contracts/{address}", h.RemoveContract)
		r.Post("/monitor/contracts/{address}/toggle", h.ToggleContract)
		r.Get("/monitor/feed", h.Feed)
		r.Get("/monitor/chart", h.Chart)
		r.Get("/monitor/alerts", h.GetAlerts)
		r.Put("/monitor/alerts", h.PutAlerts)
	})
	return router
}

func NewWebAPI(config Config) *WebAPI {
	logger := config.Dependencies.Logger
	router := ConfigureRouter(config)
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	return &WebAPI{
		router: router,
		logger: &logger,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: config.ShutdownTimeout,
	}
}

// Run 启动服务，ctx 结束时优雅关闭
func (w *WebAPI) Run(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		w.logger.Info().Msg("shutdown initiated")

		// 给未完成的请求留出时间
		shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()

		err := w.server.Shutdown(shutdownCtx)
		if err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			err = w.server.Close()
		}
		return err
	}
}

func (w *WebAPI) Handler() http.Handler { return w.router }

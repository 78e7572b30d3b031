package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/thereayou/circlechat/internal/config"
	"github.com/thereayou/circlechat/internal/database"
	"github.com/thereayou/circlechat/internal/handlers"
	"github.com/thereayou/circlechat/internal/handlers/dto"
	"github.com/thereayou/circlechat/internal/metrics"
	"github.com/thereayou/circlechat/internal/services"
	"github.com/thereayou/circlechat/internal/websocket"
	"github.com/thereayou/circlechat/pkg/auth"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg    *config.Config
	log    *slog.Logger
	db     *database.Database
	redis  *redis.Client
	hub    *websocket.Hub
	router *gin.Engine
}

// migrate brings the schema up to date without starting anything else.
func migrate(cfg *config.Config) error {
	db, err := database.Connect(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	defer db.Close()
	return db.Migrate()
}

func NewServer(cfg *config.Config, log *slog.Logger) (*Server, error) {
	db, err := database.Connect(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := websocket.NewHub(
		websocket.NewRegistry(clock.New(), cfg.Presence.GracePeriod),
		websocket.NewRoomIndex(),
		log,
		m,
	)
	hub.OnOffline(func(userID uuid.UUID, lastSeen time.Time) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.UpdateLastSeen(ctx, userID, lastSeen); err != nil {
			log.Warn("persist last seen", "user_id", userID, "error", err)
		}
	})

	// JWTs are issued by the account service; the TTL only matters there.
	jwtMgr := auth.NewJWTManager(cfg.JWT.Secret, 24*time.Hour)
	authSvc := services.NewAuthService(jwtMgr, services.NewRedisBlacklist(rdb), db, log)

	presenter := dto.NewPresenter(cfg.History.Location)
	history := services.NewHistoryService(db, db, db, hub, presenter, services.HistoryConfig{
		PageSize:    cfg.History.PageSize,
		MaxPageSize: cfg.History.MaxPageSize,
	}, log)
	gateway := handlers.NewGateway(db, db, db, history, hub, presenter, handlers.GatewayConfig{
		EventTimeout: cfg.WebSocket.EventTimeout,
	}, m, log)

	s := &Server{
		cfg:   cfg,
		log:   log,
		db:    db,
		redis: rdb,
		hub:   hub,
	}
	s.router = NewRouter(routes{
		log:     log,
		metrics: m,
		gather:  reg,
		auth:    authSvc,
		health:  s.health,
		chats:   handlers.NewChatHandler(history, log),
		rooms:   handlers.NewRoomHandler(db, hub, log),
		ws: handlers.NewWebSocketHandler(gateway, handlers.WebSocketConfig{
			AllowedOrigins: cfg.WebSocket.AllowedOrigins,
			MessageRate:    cfg.WebSocket.MessageRate,
			MessageBurst:   cfg.WebSocket.MessageBurst,
		}, log),
	})
	return s, nil
}

func (s *Server) health(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", "addr", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.hub.Stop()
	return httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) Close() {
	if err := s.redis.Close(); err != nil {
		s.log.Warn("close redis", "error", err)
	}
	if err := s.db.Close(); err != nil {
		s.log.Warn("close database", "error", err)
	}
}

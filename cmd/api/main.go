// Package main provides the HTTP API server for convention signature and outbox administration.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/rueidis"

	"github.com/jnst/convention-outbox/internal/config"
	"github.com/jnst/convention-outbox/internal/eventbus"
	"github.com/jnst/convention-outbox/internal/gateway"
	"github.com/jnst/convention-outbox/internal/logger"
	"github.com/jnst/convention-outbox/internal/model"
	"github.com/jnst/convention-outbox/internal/publisher"
	"github.com/jnst/convention-outbox/internal/repository"
	"github.com/jnst/convention-outbox/internal/service"
)

const (
	contentTypeJSON        = "Content-Type"
	applicationJSON        = "application/json"
	failedToEncodeResponse = "failed to encode response"
	defaultFailedLimit     = 100
	shutdownTimeout        = 10 * time.Second
	readHeaderTimeout      = 5 * time.Second
	exitCode               = 1
)

// APIServer handles HTTP requests for conventions and outbox events.
type APIServer struct {
	conventionService service.ConventionService
	outboxService     service.OutboxService
}

// NewAPIServer creates a new API server instance.
func NewAPIServer(conventionService service.ConventionService, outboxService service.OutboxService) *APIServer {
	return &APIServer{
		conventionService: conventionService,
		outboxService:     outboxService,
	}
}

// Routes returns the HTTP router.
func (s *APIServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.HealthCheck)

	r.Route("/conventions", func(r chi.Router) {
		r.Post("/", s.CreateConvention)
		r.Get("/{id}", s.GetConvention)
		r.Post("/{id}/sign", s.SignConvention)
		r.Post("/{id}/status", s.UpdateConventionStatus)
	})

	r.Route("/admin/events", func(r chi.Router) {
		r.Get("/failed", s.ListFailedEvents)
		r.Post("/{id}/republish", s.RepublishEvent)
	})

	return r
}

type signRequest struct {
	Role model.Role `json:"role"`
}

type updateStatusRequest struct {
	Role          model.Role             `json:"role"`
	Status        model.ConventionStatus `json:"status"`
	Justification string                 `json:"justification"`
}

// CreateConvention handles POST /conventions.
func (s *APIServer) CreateConvention(w http.ResponseWriter, r *http.Request) {
	var convention model.Convention
	if err := json.NewDecoder(r.Body).Decode(&convention); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid JSON: %w", model.ErrBadRequest, err))
		return
	}

	created, err := s.conventionService.CreateConvention(r.Context(), &convention)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// GetConvention handles GET /conventions/{id}.
func (s *APIServer) GetConvention(w http.ResponseWriter, r *http.Request) {
	convention, err := s.conventionService.GetConvention(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, convention)
}

// SignConvention handles POST /conventions/{id}/sign.
func (s *APIServer) SignConvention(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid JSON: %w", model.ErrBadRequest, err))
		return
	}

	convention, err := s.conventionService.SignConvention(r.Context(), service.SignConventionParams{
		ConventionID: chi.URLParam(r, "id"),
		Role:         req.Role,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, convention)
}

// UpdateConventionStatus handles POST /conventions/{id}/status.
func (s *APIServer) UpdateConventionStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid JSON: %w", model.ErrBadRequest, err))
		return
	}

	convention, err := s.conventionService.UpdateConventionStatus(r.Context(), service.UpdateConventionStatusParams{
		ConventionID:  chi.URLParam(r, "id"),
		Role:          req.Role,
		Status:        req.Status,
		Justification: req.Justification,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, convention)
}

// ListFailedEvents handles GET /admin/events/failed.
func (s *APIServer) ListFailedEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultFailedLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, r, fmt.Errorf("%w: invalid limit parameter %q", model.ErrBadRequest, raw))
			return
		}

		limit = parsed
	}

	events, err := s.outboxService.ListFailedEvents(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if events == nil {
		events = []*model.DomainEvent{}
	}

	writeJSON(w, http.StatusOK, events)
}

// RepublishEvent handles POST /admin/events/{id}/republish.
func (s *APIServer) RepublishEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.outboxService.RepublishEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, event)
}

// HealthCheck handles GET /health endpoint for service health check.
func (*APIServer) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(contentTypeJSON, applicationJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error(failedToEncodeResponse, slog.String("error", err.Error()))
	}
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	message := err.Error()

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))

		message = http.StatusText(status)
	}

	writeJSON(w, status, map[string]string{"error": message})
}

func setupRedisClient(cfg *config.Config) rueidis.Client {
	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		slog.Warn("redis unavailable, broadcasting and notifications disabled",
			slog.String("error", err.Error()))

		return nil
	}

	return redisClient
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	loggerInstance := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(loggerInstance)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer dbPool.Close()

	if err := repository.ApplySchema(ctx, dbPool); err != nil {
		slog.Error("failed to apply schema", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	redisClient := setupRedisClient(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	uowPerformer := repository.NewTransactionManagerImpl(dbPool)
	timeGateway := gateway.NewRealTimeGateway()
	eventFactory := eventbus.NewEventFactory(timeGateway, gateway.NewRandomUUIDGenerator())
	conventionService := service.NewConventionServiceImpl(uowPerformer, eventFactory, timeGateway)

	outboxPublisher, err := publisher.New(cfg, uowPerformer, redisClient, loggerInstance)
	if err != nil {
		slog.Error("failed to set up publisher", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer outboxPublisher.Close()

	if cfg.PublisherInProcess {
		go publisher.RunLoop(ctx, outboxPublisher.OutboxService, cfg.PublisherPollInterval, cfg.PublisherBatchSize)
	}

	server := NewAPIServer(conventionService, outboxPublisher.OutboxService)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shut down server", slog.String("error", err.Error()))
		}
	}()

	slog.Info("starting API server",
		slog.String("service", "api"),
		slog.String("port", cfg.Port),
		slog.Bool("in_process_publisher", cfg.PublisherInProcess),
	)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("failed to start server", slog.String("error", err.Error()))
		return
	}
}

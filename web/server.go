package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"f0oster/adsweep/approval"
	"f0oster/adsweep/chatbot"
	"f0oster/adsweep/workflow"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// WebhookHandler resolves interactive approval callbacks.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, header http.Header, body []byte) (*approval.Resolution, error)
}

// ChatBot answers Events API deliveries and slash commands.
type ChatBot interface {
	HandleEvent(ctx context.Context, body []byte) (*chatbot.EventResponse, error)
	HandleSlashCommand(ctx context.Context, cmd slack.SlashCommand) *slack.Msg
}

// Dispatcher runs a workflow invocation.
type Dispatcher interface {
	Dispatch(ctx context.Context, t workflow.Trigger) (any, error)
}

// Options wires the server. Nil components leave their routes unregistered.
type Options struct {
	Addr          string
	SigningSecret string
	MaxSkew       time.Duration
	Webhooks      WebhookHandler
	Bot           ChatBot
	Dispatcher    Dispatcher
	RateLimit     RateLimitConfig
	Logger        *zap.Logger
	Now           func() time.Time
}

// Server serves the chat callbacks, invocations, health and metrics endpoints.
type Server struct {
	opts   Options
	router chi.Router
	logger *zap.Logger
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		opts:   opts,
		router: chi.NewRouter(),
		logger: opts.Logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(Metrics)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.opts.RateLimit.RequestsPerSecond > 0 {
			r.Use(RateLimiter(s.opts.RateLimit))
		}
		if s.opts.Webhooks != nil {
			r.Post("/slack/actions", s.handleActions)
		}
		if s.opts.Bot != nil {
			r.Post("/slack/events", s.handleEvents)
		}
		if s.opts.Dispatcher != nil {
			r.Post("/invoke", s.handleInvoke)
		}
	})
}

// Handler returns the HTTP handler for use with custom servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting web server", zap.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("web server stopped")
	return nil
}

package server

import (
	"chat-relay/auth"
	"chat-relay/observability"
	"chat-relay/services"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	SubscriberBufferSize int
	WriteTimeout         time.Duration
	PingInterval         time.Duration
	MaxUploadBytes       int64
	RateLimitRPS         float64
	RateLimitBurst       int
	SearchLimit          int
}

// AccessTokenIssuer issues conversation-service access tokens.
type AccessTokenIssuer interface {
	Issue(identity string) (string, error)
}

type Server struct {
	conversations services.IConversationResolver
	chat          services.IChatService
	media         services.IMediaGateway
	tokens        auth.TokenValidator
	accessTokens  AccessTokenIssuer
	gatherer      prometheus.Gatherer
	health        func(ctx context.Context) error
	limiter       *limiterPool
	validate      *validator.Validate
	opts          Options
	log           *slog.Logger

	// base outlives requests; cancelling it ends every live subscription.
	base      context.Context
	closeLive context.CancelFunc
}

func NewServer(
	log *slog.Logger,
	opts Options,
	conversations services.IConversationResolver,
	chat services.IChatService,
	media services.IMediaGateway,
	tokens auth.TokenValidator,
	accessTokens AccessTokenIssuer,
	gatherer prometheus.Gatherer,
) *Server {
	if opts.SubscriberBufferSize <= 0 {
		opts.SubscriberBufferSize = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 25 << 20
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 20
	}
	base, closeLive := context.WithCancel(context.Background())
	return &Server{
		base:          base,
		closeLive:     closeLive,
		conversations: conversations,
		chat:          chat,
		media:         media,
		tokens:        tokens,
		accessTokens:  accessTokens,
		gatherer:      gatherer,
		limiter:       newLimiterPool(opts.RateLimitRPS, opts.RateLimitBurst),
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		opts:          opts,
		log:           log,
	}
}

// WithHealthCheck makes /healthz report the result of check.
func (s *Server) WithHealthCheck(check func(ctx context.Context) error) *Server {
	s.health = check
	return s
}

// CloseLive disconnects every WebSocket subscriber. http.Server.Shutdown does
// not track hijacked connections.
func (s *Server) CloseLive() {
	s.closeLive()
}

// Handler routes every endpoint. Everything but /metrics and /healthz needs a
// bearer token; sending messages is rate limited per caller.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, auth.Middleware(s.tokens, s.writeError, h))
	}

	protected("POST /conversations", s.createConversation)
	protected("GET /conversations", s.listConversations)
	protected("GET /conversations/{userId}/user", s.dualConversation)
	protected("DELETE /conversations/{sid}", s.deleteConversation)
	protected("POST /conversations/token", s.accessToken)
	protected("POST /conversations/{sid}/messages", s.rateLimited(s.postMessage))
	protected("GET /conversations/{sid}/messages", s.listMessages)
	protected("GET /conversations/{sid}/messages/search", s.searchMessages)
	protected("GET /conversations/{sid}/presence", s.presence)
	protected("GET /conversations/{sid}/live", s.live)
	protected("GET /messages/{id}", s.getMessage)
	protected("PATCH /messages/{id}", s.patchMessage)
	protected("GET /media/{key...}", s.getMedia)

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", s.healthz)

	return s.instrument(mux)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.log.Warn("Health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instrument records latency per matched route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		observability.HTTPRequests.
			WithLabelValues(route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

// Package admin is the local HTTP surface over an assembled cab: health,
// metrics, the component directory, raw contract calls, broadcasts, and
// provider and consumer actions.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/opencab/internal/auth"
	"github.com/danmuck/opencab/internal/cab"
	"github.com/danmuck/opencab/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Options struct {
	CorsOrigins []string
	// RPS and Burst bound requests per client IP and route group. RPS <= 0
	// disables limiting.
	RPS   float64
	Burst int
	// Token, when set, is required as a bearer token on every route except
	// /health and /ready.
	Token string
}

type Server struct {
	ID       string
	Addr     string
	Appeared time.Time

	cab     *cab.Cab
	router  *gin.Engine
	limiter *RouteLimiter
}

func New(id, addr string, c *cab.Cab, opts Options) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AccessLog(log.Logger))
	r.Use(observability.RequestMetrics(c.Device.Name()))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ID:       id,
		Addr:     addr,
		Appeared: time.Now(),
		cab:      c,
		router:   r,
		limiter:  NewRouteLimiter(opts.RPS, opts.Burst, 10*time.Minute),
	}
	if s.limiter != nil {
		r.Use(s.rateLimit())
	}
	if opts.Token != "" {
		r.Use(requireToken(auth.StaticToken{Token: opts.Token}))
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve blocks serving the admin surface on Addr until ctx ends, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info().Msgf("admin.Serve id=%s addr=%s", s.ID, s.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msgf("admin.Serve id=%s shutting down", s.ID)
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		group := routeGroup(c.Request.Method, c.FullPath())
		if !s.limiter.Allow(c.ClientIP(), group, time.Now()) {
			log.Debug().Str("client", c.ClientIP()).Str("group", group).Msg("admin.rate_limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/health", "/ready":
			c.Next()
			return
		}
		if err := auth.Check(v, c.GetHeader("Authorization")); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

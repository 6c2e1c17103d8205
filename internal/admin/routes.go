package admin

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/opencab/internal/broadcast"
	"github.com/danmuck/opencab/internal/cab"
	"github.com/danmuck/opencab/internal/consumer"
	"github.com/danmuck/opencab/internal/contracts/hos"
	"github.com/danmuck/opencab/internal/contracts/identity"
	"github.com/danmuck/opencab/internal/contracts/vehicle"
	"github.com/danmuck/opencab/internal/discovery"
	"github.com/danmuck/opencab/internal/host"
	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/provider"
	"github.com/danmuck/opencab/internal/version"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Version = "0.1.0"

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": Version,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   true,
			"device":  s.cab.Device.Name(),
			"apps":    s.cab.Device.Apps(),
			"service": s.ID,
		})
	})

	r.GET("/directory", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.cab.Device.Directory())
	})
	r.GET("/discover", s.handleDiscover)
	r.POST("/call", s.handleCall)
	r.POST("/broadcast", s.handleBroadcast)

	r.GET("/providers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"providers": s.cab.Providers(),
			"actions":   ProviderActions(),
		})
	})
	r.GET("/providers/:provider", func(c *gin.Context) {
		app, err := s.cab.Provider(c.Param("provider"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, app.State())
	})
	r.POST("/providers/:provider/actions/:action", s.handleAction)

	r.GET("/consumers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"consumers": s.cab.Consumers()})
	})
	r.GET("/consumers/:consumer/:view", s.handleConsumerView)
}

func (s *Server) handleDiscover(c *gin.Context) {
	var kind discovery.Kind
	switch strings.ToLower(c.DefaultQuery("kind", "provider")) {
	case "provider":
		kind = discovery.KindProvider
	case "receiver":
		kind = discovery.KindReceiver
	default:
		writeError(c, fmt.Errorf("%w: kind must be provider or receiver", ErrBadRequest))
		return
	}
	patterns := c.QueryArray("pattern")
	if len(patterns) == 0 {
		writeError(c, fmt.Errorf("%w: pattern is required", ErrBadRequest))
		return
	}
	found := discovery.DiscoverAll(s.cab.Device.Directory(), kind, patterns...)
	c.JSON(http.StatusOK, gin.H{
		"kind":        kind.String(),
		"patterns":    patterns,
		"descriptors": found,
	})
}

func (s *Server) handleCall(c *gin.Context) {
	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.Endpoint) == "" || strings.TrimSpace(req.Method) == "" {
		writeError(c, fmt.Errorf("%w: endpoint and method are required", ErrBadRequest))
		return
	}
	var v version.Version
	if raw := strings.TrimSpace(req.Version); raw != "" {
		parsed, err := version.Parse(raw)
		if err != nil {
			writeError(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
			return
		}
		v = parsed
	}

	resp, err := s.cab.Device.Call(c.Request.Context(), req.Endpoint, protocol.Request{Method: req.Method, Version: v})
	if err != nil {
		writeError(c, err)
		return
	}
	out := CallResponse{
		Endpoint: req.Endpoint,
		Method:   req.Method,
		Error:    resp.Error,
		Payload:  renderPayload(resp.Payload),
	}
	if !resp.ServedVersion.IsZero() {
		out.Served = resp.ServedVersion.String()
	}
	if !resp.Failed() {
		decoded, err := decodeTyped(req.Endpoint, req.Method, resp.ServedVersion, resp.Payload)
		if err != nil {
			out.Error = err.Error()
		}
		out.Decoded = decoded
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleBroadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	e := protocol.NewEvent(req.Action, protocol.NewBundle())
	if err := s.cab.Fanout.Broadcast(c.Request.Context(), e); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "ok", "event_id": e.ID, "action": e.Action})
}

func (s *Server) handleAction(c *gin.Context) {
	var req ActionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
			return
		}
	}
	state, err := s.ExecuteAction(c.Request.Context(), c.Param("provider"), c.Param("action"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": state})
}

func (s *Server) handleConsumerView(c *gin.Context) {
	app, err := s.cab.Consumer(c.Param("consumer"))
	if err != nil {
		writeError(c, err)
		return
	}
	ctx := c.Request.Context()
	switch c.Param("view") {
	case "hos":
		c.JSON(http.StatusOK, gin.H{"results": views(app.HOS(ctx), hos.Payload.Served)})
	case "credentials":
		c.JSON(http.StatusOK, gin.H{"results": views(app.LoginCredentials(ctx), identity.CredentialsPayload.Served)})
	case "drivers":
		c.JSON(http.StatusOK, gin.H{"results": views[[]identity.Driver](app.ActiveDrivers(ctx), nil)})
	case "vehicles":
		c.JSON(http.StatusOK, gin.H{"results": views(app.Vehicles(), vehicle.Payload.Served)})
	case "events":
		c.JSON(http.StatusOK, gin.H{"events": app.Events().Entries()})
	default:
		writeError(c, fmt.Errorf("%w: consumer view %s", ErrActionNotFound, c.Param("view")))
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cab.ErrUnknownApp),
		errors.Is(err, host.ErrUnknownAuthority),
		errors.Is(err, ErrActionNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrNotLoggedIn):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, broadcast.ErrUnknownEvent),
		errors.Is(err, provider.ErrInvalidUsername),
		errors.Is(err, provider.ErrInvalidDuty),
		errors.Is(err, provider.ErrInvalidSettings),
		errors.Is(err, consumer.ErrInvalidSettings):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

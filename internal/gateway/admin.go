package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/hfpag/internal/auth"
	"github.com/danmuck/hfpag/internal/callmanager"
	"github.com/danmuck/hfpag/internal/indicators"
	"github.com/danmuck/hfpag/internal/observability"
	"github.com/danmuck/hfpag/internal/procedure"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Admin is the HTTP control surface. It also lets HTTP clients act as the
// call manager: each registered connection is a callmanager.Pipe whose
// hanging get is a long-polling GET.
type Admin struct {
	svc      *Service
	provider *callmanager.Provider
	router   *gin.Engine
	appeared time.Time

	mu      sync.Mutex
	clients map[string]*callmanager.Client
}

func NewAdmin(svc *Service, provider *callmanager.Provider, corsOrigins []string) *Admin {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(svc.cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{
		svc:      svc,
		provider: provider,
		router:   r,
		appeared: time.Now(),
		clients:  make(map[string]*callmanager.Client),
	}
	a.registerRoutes()
	return a
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

func (a *Admin) HTTPRouter() *gin.Engine {
	return a.router
}

// Serve listens on addr until ctx ends.
func (a *Admin) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: a.router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info().Str("addr", addr).Msg("gateway.Admin.Serve listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway: admin listen %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		a.closeClients()
		return srv.Shutdown(shutdownCtx)
	}
}

// closeClients ends every HTTP call-manager connection and releases the
// admin's provider.
func (a *Admin) closeClients() {
	a.mu.Lock()
	for id, c := range a.clients {
		c.Close()
		delete(a.clients, id)
	}
	a.mu.Unlock()
	a.provider.Release()
}

func (a *Admin) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(a.appeared).String(),
			"component": "hfpag-admin",
			"version":   "0.0.1",
		})
	})

	a.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":        true,
			"peers":        a.svc.PeerCount(),
			"call_manager": a.svc.bridge.Connected(),
		})
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router.GET("/peers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"peers": a.svc.Peers()})
	})

	a.router.GET("/peers/:peer", func(c *gin.Context) {
		p, ok := a.svc.Peer(c.Param("peer"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "peer not found"})
			return
		}
		c.JSON(http.StatusOK, p.Snapshot())
	})

	a.router.GET("/peers/:peer/indicators", func(c *gin.Context) {
		p, ok := a.svc.Peer(c.Param("peer"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "peer not found"})
			return
		}
		snap := p.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"indicators":      snap.Indicators,
			"reporting":       snap.Reporting,
			"battery_level":   snap.BatteryLevel,
			"enhanced_safety": snap.EnhancedSafety,
		})
	})

	// Routes below change AG or call manager state.
	guarded := a.router.Group("")
	if token := a.svc.cfg.AdminToken; token != "" {
		guarded.Use(auth.Middleware(auth.StaticToken{Token: token}))
	}

	guarded.POST("/peers/:peer/codec", func(c *gin.Context) {
		var body struct {
			Codec int `json:"codec"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p, ok := a.svc.Peer(c.Param("peer"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "peer not found"})
			return
		}
		if err := p.SetupCodec(c.Request.Context(), procedure.CodecID(body.Codec)); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
	})

	a.router.GET("/phone-status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"indicators": a.svc.ag.Status(),
			"operator":   a.svc.ag.Operator(),
		})
	})

	guarded.POST("/phone-status", func(c *gin.Context) {
		var body struct {
			Indicator string `json:"indicator"`
			Value     *uint8 `json:"value"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.Value == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "indicator and value required"})
			return
		}
		ind, err := indicators.ParseAgIndicator(body.Indicator)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		notified, err := a.svc.SetPhoneStatus(c.Request.Context(), ind, *body.Value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "notified": notified})
	})

	guarded.POST("/operator", func(c *gin.Context) {
		var body struct {
			Name string `json:"name"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a.svc.ag.SetOperator(body.Name)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	guarded.POST("/call-manager/connections", func(c *gin.Context) {
		client, conn := callmanager.Pipe()
		a.provider.Register(conn)
		if err := client.Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		a.mu.Lock()
		a.clients[client.ID()] = client
		a.mu.Unlock()
		c.JSON(http.StatusCreated, gin.H{"id": client.ID()})
	})

	guarded.GET("/call-manager/connections/:conn/watch", func(c *gin.Context) {
		client, ok := a.client(c.Param("conn"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
			return
		}
		w, err := client.WatchForPeer(c.Request.Context())
		if err != nil {
			var closed *callmanager.ClosedError
			switch {
			case errors.As(err, &closed):
				a.forget(client.ID())
				status := http.StatusGone
				if closed.Reason == callmanager.CloseBadState {
					status = http.StatusConflict
				}
				c.JSON(status, gin.H{"error": err.Error(), "reason": closed.Reason.String()})
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				c.Status(http.StatusRequestTimeout)
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"peer": string(w.Peer)})
	})

	guarded.DELETE("/call-manager/connections/:conn", func(c *gin.Context) {
		client, ok := a.client(c.Param("conn"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
			return
		}
		client.Close()
		a.forget(client.ID())
		c.Status(http.StatusNoContent)
	})
}

func (a *Admin) client(id string) (*callmanager.Client, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.clients[id]
	return c, ok
}

func (a *Admin) forget(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.clients, id)
}

package gatesbot

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

const (
	apiHealthCheck   = "/healthz"
	apiPathQueue     = "/api/queue/:guild_id/:channel_id"
	apiPathGates     = "/api/gates"
	xRequestIDHeader = "X-Request-ID"
)

// API is the read-only status server: health, queue state by scope,
// and the gate registry. No mutation endpoints; all writes go through
// Discord.
type API struct {
	config     *APIConfig
	engine     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger

	store     *QueueStore
	gates     *GateRegistry
	analytics *Analytics
}

// newAPI builds the status API server. If log is nil, slog.Default()
// is used.
func newAPI(
	config *APIConfig,
	store *QueueStore,
	gates *GateRegistry,
	analytics *Analytics,
	log *slog.Logger,
) *API {
	if log == nil {
		log = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	api := &API{
		config:    config,
		engine:    r,
		logger:    log.With(loggerNameKey, "api"),
		store:     store,
		gates:     gates,
		analytics: analytics,
	}
	api.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	corsConfig := config.CORS.GINConfig()
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	r.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		api.loggingMiddleware(),
		cors.New(corsConfig),
	)

	r.GET(apiHealthCheck, api.healthCheck)
	r.GET(apiPathQueue, api.getQueue)
	r.GET(apiPathGates, api.getGates)

	return api
}

// Run serves until the context is canceled, then shuts down
// gracefully.
func (a *API) Run(ctx context.Context) error {
	listener, err := net.Listen(a.config.ListenNetwork, a.config.Listen)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "API listening", "address", a.config.Listen)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.httpServer.Serve(listener)
	}()

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), 5*time.Second,
		)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	}
}

func (a *API) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getQueue returns the queue document for one scope. An unknown scope
// returns an empty queue rather than 404, matching what a sign-up
// would see.
func (a *API) getQueue(c *gin.Context) {
	scope := Scope{
		GuildID:   c.Param("guild_id"),
		ChannelID: c.Param("channel_id"),
	}
	q, err := a.store.Load(c.Request.Context(), scope)
	if err != nil {
		a.logger.Error("error loading queue", tint.Err(err), "scope", scope)
		c.JSON(
			http.StatusInternalServerError,
			gin.H{"error": "error loading queue"},
		)
		return
	}
	q.SortByTier()
	c.JSON(
		http.StatusOK, gin.H{
			"guild_id":   q.GuildID,
			"channel_id": q.ChannelID,
			"locked":     q.Locked,
			"revision":   q.Revision(),
			"groups":     q.Groups,
		},
	)
}

func (a *API) getGates(c *gin.Context) {
	gates, err := a.gates.List(c.Request.Context())
	if err != nil {
		a.logger.Error("error listing gates", tint.Err(err))
		c.JSON(
			http.StatusInternalServerError,
			gin.H{"error": "error listing gates"},
		)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gates": gates})
}

// requestIDMiddleware assigns a random request ID to each request and
// echoes it in the response headers.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := generateRandomHexString(32)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

func (a *API) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		requestID, _ := c.Get(xRequestIDHeader)
		a.logger.Info(
			"request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", requestID,
		)
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/manufacturing_backend/actions"
	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/graph"
	"github.com/mmdatafocus/manufacturing_backend/middlewares"
	"github.com/mmdatafocus/manufacturing_backend/models"
	"github.com/mmdatafocus/manufacturing_backend/utils"
	"github.com/mmdatafocus/manufacturing_backend/workflow"
	"github.com/ravilushqa/otelgqlgen"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = "8080"

const maxActionBodyBytes = 4 << 20

var tracer = otel.Tracer("manufacturing-backend")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
}

// manufacturingActionHandler serves POST /api/manufacturing/:action with the action's JSON input.
func manufacturingActionHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("action")
		ctx, span := tracer.Start(c.Request.Context(), "manufacturing."+name, trace.WithAttributes(
			attribute.String("manufacturing.action", name),
		))
		defer span.End()

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxActionBodyBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if len(body) > 0 && !json.Valid(body) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be JSON"})
			return
		}

		result, err := actions.Run(ctx, name, body)
		if err != nil {
			status := actions.StatusCode(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if status >= http.StatusInternalServerError {
				config.LogError(logger, "server.go", "manufacturingActionHandler", name, string(body), err)
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// Defining the Graphql handler
func graphqlHandler() gin.HandlerFunc {
	c := graph.Config{Resolvers: &graph.Resolver{
		Tracer: tracer,
	}}

	// no introspection, so not NewDefaultServer
	h := handler.New(graph.NewExecutableSchema(c))
	h.Use(otelgqlgen.Middleware())
	h.AddTransport(transport.GET{})
	h.AddTransport(transport.POST{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Defining the Playground handler
func playgroundHandler() gin.HandlerFunc {
	h := playground.Handler("GraphQL", "/query")

	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func actionListHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"actions": actions.Names()})
}

type outboxReplayRequest struct {
	ReferenceType string `json:"reference_type"`
	ReferenceId   int    `json:"reference_id"`
}

func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.ReferenceType == "" || req.ReferenceId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reference_type and reference_id are required"})
			return
		}
		status, err := models.ReprocessOutbox(c.Request.Context(), req.ReferenceType, req.ReferenceId)
		if err != nil {
			c.JSON(actions.StatusCode(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func newRouter(logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(func(c *gin.Context) {
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		if len(corsConfig.AllowOrigins) == 0 {
			corsConfig.AllowOrigins = []string{"https://localhost"}
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "x-correlation-id")
	r.Use(cors.New(corsConfig))

	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(getRedisClient(os.Getenv("REDIS_ADDRESS")), limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api/manufacturing", middlewares.RequireUser())
	api.GET("", actionListHandler)
	api.POST("/:action", manufacturingActionHandler(logger))

	gql := graphqlHandler()
	query := r.Group("/query", middlewares.RequireUser(), middlewares.LoaderMiddleware())
	query.POST("", gql)
	query.GET("", gql)
	r.GET("/", playgroundHandler())

	ops := r.Group("/internal/ops", middlewares.RequireUser(), middlewares.RequireRole("admin"))
	ops.POST("/outbox/replay", outboxReplayHandler())
	ops.POST("/ledger/reconcile", func(c *gin.Context) {
		var req struct {
			CompanyId int `json:"company_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.CompanyId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "company_id is required"})
			return
		}
		result, err := workflow.RunLedgerReconciliation(c.Request.Context(), logger, req.CompanyId)
		if err != nil {
			c.JSON(actions.StatusCode(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})
	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newRouter(logger),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	if dispatcher := newOutboxDispatcher(logger); dispatcher != nil {
		go dispatcher.Run(dispatcherCtx)
	} else {
		logger.WithFields(logrus.Fields{"field": "outbox"}).Warn("event delivery disabled; manufacturing events stay PENDING")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("manufacturing api listening on :", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// RateLimitMiddleware counts requests per client IP in a fixed window.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "ratelimit:" + c.ClientIP()

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		// Redis down: do not take the API with it.
		c.Next()
		return
	}
	if count == 1 {
		rl.client.Expire(c.Request.Context(), key, rl.window)
	}
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}
	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

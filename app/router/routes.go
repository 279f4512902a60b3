// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cache"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/werkpilot/cost-model-service/app/dto"
	"github.com/werkpilot/cost-model-service/app/handlers"
	"github.com/werkpilot/cost-model-service/app/middleware"
	"github.com/werkpilot/cost-model-service/utils"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app              *fiber.App
	articleHandler   handlers.ArticleHandlerInterface
	analyzeHandler   handlers.AnalyzeHandlerInterface
	costingHandler   handlers.CostingHandlerInterface
	indexHandler     handlers.IndexHandlerInterface
	orderHandler     handlers.OrderHandlerInterface
	costModelHandler handlers.CostModelHandlerInterface
	estimateHandler  handlers.EstimateHandlerInterface
	ingestHandler    handlers.IngestHandlerInterface
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	articleHandler handlers.ArticleHandlerInterface,
	analyzeHandler handlers.AnalyzeHandlerInterface,
	costingHandler handlers.CostingHandlerInterface,
	indexHandler handlers.IndexHandlerInterface,
	orderHandler handlers.OrderHandlerInterface,
	costModelHandler handlers.CostModelHandlerInterface,
	estimateHandler handlers.EstimateHandlerInterface,
	ingestHandler handlers.IngestHandlerInterface,
) Router {
	// Configure Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Cost Model Service API",
		ServerHeader: "cost-model-service",
		ErrorHandler: errorHandler,
		BodyLimit:    32 * 1024 * 1024, // 32MB, workbook uploads included
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:              app,
		articleHandler:   articleHandler,
		analyzeHandler:   analyzeHandler,
		costingHandler:   costingHandler,
		indexHandler:     indexHandler,
		orderHandler:     orderHandler,
		costModelHandler: costModelHandler,
		estimateHandler:  estimateHandler,
		ingestHandler:    ingestHandler,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	// Global middleware
	r.setupMiddleware()

	// Prometheus scrape endpoint at the root, outside the API group
	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes
	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting)
	api.Get("/health", r.healthCheck)

	// API documentation route (development only)
	if os.Getenv("APP_ENV") == "development" || os.Getenv("APP_ENV") == "local" {
		api.Get("/docs", r.getAPIDocumentation)
		log.Println("API documentation enabled for development")
	}

	// Apply general rate limiting to all API routes
	api.Use(limiter.New(limiter.Config{
		Max:        2000,            // Maximum 2000 requests
		Expiration: 1 * time.Minute, // Per minute
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP() // Rate limit by IP
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
		Next: func(c fiber.Ctx) bool {
			// Skip rate limiting for health checks
			return c.Path() == "/api/v1/health"
		},
	}))

	// Article endpoints
	articles := api.Group("/articles")
	articles.Post("", r.articleHandler.CreateArticle)
	articles.Get("", r.articleHandler.ListArticles)
	articles.Get("/:id", r.articleHandler.GetArticle)
	articles.Put("/:id", r.articleHandler.UpdateArticle)
	articles.Delete("/:id", r.articleHandler.DeleteArticle)
	articles.Get("/:id/status", r.articleHandler.GetArticleStatus)
	articles.Get("/:id/cost-breakdown", r.costingHandler.GetCostBreakdown)
	articles.Get("/:id/indices-values", r.costingHandler.GetIndicesValues)
	articles.Get("/:id/price-history", r.costingHandler.GetPriceHistory)
	articles.Get("/:id/cost-models", r.costModelHandler.ListCostModelsForArticle)

	// Upload-and-process and estimation endpoints
	api.Post("/analyze", r.analyzeHandler.AnalyzeArticle)
	api.Post("/cost-estimates", r.estimateHandler.GenerateCostEstimate)

	// Index endpoints; static paths are registered before the :id routes
	indices := api.Group("/indices")
	indices.Post("", r.indexHandler.CreateIndex)
	indices.Get("", r.indexHandler.ListIndices)
	indices.Get("/names", r.indexHandler.GetIndexNames)
	indices.Post("/upload-csv", r.ingestHandler.UploadIndicesCSV)
	indices.Post("/upload-excel", r.ingestHandler.UploadIndicesExcel)
	indices.Get("/:id", r.indexHandler.GetIndex)
	indices.Put("/:id", r.indexHandler.UpdateIndex)
	indices.Delete("/:id", r.indexHandler.DeleteIndex)

	// Order endpoints
	orders := api.Group("/orders")
	orders.Post("", r.orderHandler.CreateOrder)
	orders.Get("", r.orderHandler.ListOrders)
	orders.Post("/upload-csv", r.ingestHandler.UploadOrdersCSV)
	orders.Get("/:id", r.orderHandler.GetOrder)
	orders.Put("/:id", r.orderHandler.UpdateOrder)
	orders.Delete("/:id", r.orderHandler.DeleteOrder)

	// Cost model endpoints, keyed by the (article, index) pair
	costModels := api.Group("/cost-models")
	costModels.Post("", r.costModelHandler.CreateCostModel)
	costModels.Get("", r.costModelHandler.ListCostModels)
	costModels.Put("/:article_id/:index_id", r.costModelHandler.UpdateCostModel)
	costModels.Delete("/:article_id/:index_id", r.costModelHandler.DeleteCostModel)

	// Not found handler
	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	// Security headers middleware
	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		HSTSMaxAge:                31536000, // 1 year
		HSTSExcludeSubdomains:     false,
		ContentSecurityPolicy:     "default-src 'self'; frame-ancestors 'none';",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginEmbedderPolicy: "require-corp",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "cross-origin",
		OriginAgentCluster:        "?1",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	// CORS middleware with production settings
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"https://werkpilot.com",
			"https://app.werkpilot.com",
			"https://api.werkpilot.com",
		},
		AllowMethods: []string{
			"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"X-Requested-With",
			"X-Request-ID",
			"Cache-Control",
		},
		ExposeHeaders: []string{
			"X-Request-ID",
			"X-Response-Time",
		},
		AllowCredentials: true,
		MaxAge:           utils.CORSMaxAge,
	}))

	// Compression middleware for performance
	r.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c fiber.Ctx) bool {
			// Skip compression for binary uploads
			contentType := c.Get("Content-Type")
			return containsAny(contentType, "multipart/form-data", "application/octet-stream")
		},
	}))

	// Cache middleware for static content
	r.app.Use(cache.New(cache.Config{
		Next: func(c fiber.Ctx) bool {
			// Only cache GET requests to the health endpoint
			return c.Method() != "GET" || c.Path() != "/api/v1/health"
		},
		Expiration:   30 * time.Second,
		CacheControl: true,
	}))

	// Advanced logging middleware
	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","pid":"${pid}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","protocol":"${protocol}","ip":"${ip}","user_agent":"${ua}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent},"referer":"${referer}"}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			// Skip logging for health checks in production
			return c.Path() == "/api/v1/health"
		},
	}))

	// Prometheus HTTP metrics
	r.app.Use(middleware.Metrics())

	// Response headers middleware
	r.app.Use(r.responseHeadersMiddleware)

	// Recovery middleware with custom error handling
	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e interface{}) {
			// Log panic with request context
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.Locals("requestid"),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))
}

// responseHeadersMiddleware stamps common response headers
func (r *FiberRouter) responseHeadersMiddleware(c fiber.Ctx) error {
	c.Set("X-Response-Time", utils.UTCNow().Format(time.RFC3339))
	c.Set("Server", "cost-model-service")

	return c.Next()
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// Health check endpoint
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"version":   "1.0.0",
			"service":   "cost-model-service",
		},
	})
}

// API documentation endpoint
func (r *FiberRouter) getAPIDocumentation(c fiber.Ctx) error {
	docs := GetRouteDocumentation()
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "API documentation retrieved successfully",
		Data: fiber.Map{
			"title":       "Cost Model Service API Documentation",
			"version":     "1.0.0",
			"description": "Should-cost estimation for manufactured articles",
			"endpoints":   docs,
		},
	})
}

// Not found handler
func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	requestID := c.Locals("requestid")

	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestID,
			},
		},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	// Default error code
	code := fiber.StatusInternalServerError

	// Retrieve the custom status code if it's a fiber.*Error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	// Log the error
	log.Printf("Error %d: %v", code, err)

	// Get RequestID for tracing
	requestID := c.Locals("requestid")

	// Return JSON error response
	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: "An internal server error occurred",
		Error: dto.ErrorDetail{
			Code: "INTERNAL_ERROR",
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestID,
			},
		},
	})
}

// Helper functions

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// containsAny reports whether s contains one of the substrings
func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// GetRouteDocumentation returns API documentation
func GetRouteDocumentation() []map[string]any {
	return []map[string]any{
		{
			"method":      "POST",
			"path":        "/api/v1/articles",
			"description": "Register an article by name",
			"parameters": map[string]any{
				"name":        "string (required) - Unique article name",
				"description": "string (optional) - Free-text description",
				"comment":     "string (optional) - Internal comment",
				"unit_weight": "number (optional) - Unit weight in grams",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/analyze",
			"description": "Upload a specification and schedule background analysis",
			"parameters": map[string]any{
				"article_name": "string (required) - Article name, form field",
				"spec_file":    "file (required) - Specification document",
				"drawing_file": "file (optional) - Technical drawing",
				"description":  "string (optional) - Free-text description",
				"comment":      "string (optional) - Internal comment",
				"unit_weight":  "number (optional) - Unit weight in grams",
			},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/articles/:id/cost-breakdown",
			"description": "Compute the should-cost decomposition of an article",
			"parameters": map[string]any{
				"id": "number (required) - Article ID in URL path",
			},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/articles/:id/indices-values",
			"description": "Historical values of the article's linked indices",
			"parameters": map[string]any{
				"id": "number (required) - Article ID in URL path",
			},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/articles/:id/price-history",
			"description": "Order price history of an article, newest first",
			"parameters": map[string]any{
				"id": "number (required) - Article ID in URL path",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/cost-estimates",
			"description": "Ask the language model for a free-text cost estimate",
			"parameters": map[string]any{
				"article_id": "number (required) - Article ID",
				"context":    "string (optional) - Additional context for the prompt",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/indices",
			"description": "Record an index observation, overwriting the (name, date) row if present",
			"parameters": map[string]any{
				"name":           "string (required) - Series name",
				"value":          "number (required) - Observed value",
				"date":           "string (required) - ISO date",
				"unit":           "string (optional) - Unit label, e.g. EUR/kg",
				"price_factor":   "number (optional) - Grams per priced unit",
				"value_per_gram": "number (optional) - Normalized value",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/indices/upload-csv",
			"description": "Import index observations from a wide-format CSV",
			"parameters": map[string]any{
				"file": "file (required) - CSV with a Date column and one column per series",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/indices/upload-excel",
			"description": "Import TAC index series from an Excel workbook",
			"parameters": map[string]any{
				"file":        "file (required) - Excel workbook, one sheet per series",
				"skip_sheets": "number (optional) - Leading sheets to skip, default 1",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/orders",
			"description": "Record a historical order price point",
			"parameters": map[string]any{
				"article_name": "string (optional) - Article name as ordered",
				"article_id":   "number (optional) - Linked article",
				"price":        "number (required) - Order price in EUR",
				"price_factor": "number (optional) - Grams per priced unit",
				"unit":         "string (optional) - Unit label",
				"order_date":   "string (required) - ISO date",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/orders/upload-csv",
			"description": "Import order rows from a CSV export",
			"parameters": map[string]any{
				"file": "file (required) - CSV with article_name, price, price_factor, unit, order_date columns",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/cost-models",
			"description": "Link an index contribution to an article",
			"parameters": map[string]any{
				"article_id":      "number (required) - Article ID",
				"index_id":        "number (required) - Index ID",
				"part":            "number (required) - Mass share of the article, 0..1",
				"direct_cost_eur": "number (optional) - Fixed direct cost in EUR",
			},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/health",
			"description": "Health check endpoint",
			"parameters":  map[string]any{},
		},
	}
}

// Package web provides the HTTP server with routing and middleware.
// It uses the Gin framework.
package web

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/errors"
	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
}

// DefaultRateLimit allows 100 requests per minute and IP
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Window:      60 * time.Second,
		MaxRequests: 100,
	}
}

// Options configures a Server
type Options struct {
	WebhookURL string
	// AllowedHosts is a regular expression matched against the Host
	// header. Empty allows every host.
	AllowedHosts string
	RateLimit    RateLimitConfig
}

// Server represents the web server
type Server struct {
	engine           *gin.Engine
	httpServer       *http.Server
	webhookURL       string
	allowedHostRegex *regexp.Regexp
	httpClient       *http.Client
}

var (
	server *Server
)

// Init initializes the global web server
func Init(opts Options) (*Server, error) {
	s, err := NewServer(opts)
	if err != nil {
		return nil, err
	}
	server = s
	return server, nil
}

// Get returns the global web server
func Get() *Server {
	return server
}

// NewServer creates a new web server
func NewServer(opts Options) (*Server, error) {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:     gin.New(),
		webhookURL: opts.WebhookURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}

	if opts.AllowedHosts != "" {
		re, err := regexp.Compile(opts.AllowedHosts)
		if err != nil {
			return nil, fmt.Errorf("invalid allowedHosts pattern: %w", err)
		}
		s.allowedHostRegex = re
	}

	limit := opts.RateLimit
	if limit.MaxRequests <= 0 || limit.Window <= 0 {
		limit = DefaultRateLimit()
	}

	s.engine.Use(errors.GinRecovery())
	s.engine.Use(s.logsMiddleware())
	s.engine.Use(s.rateLimitMiddleware(limit))

	s.setupErrorHandlers()

	return s, nil
}

// Engine returns the underlying Gin engine
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) hostAllowed(host string) bool {
	return s.allowedHostRegex == nil || s.allowedHostRegex.MatchString(host)
}

// logsMiddleware logs incoming requests and rejects unknown hosts
func (s *Server) logsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.hostAllowed(c.Request.Host) {
			logger.Warn(fmt.Sprintf("[LOG] Solicitud Sospechosa: %s %s | %s", c.Request.Method, c.Request.URL.Path, c.ClientIP()), "WebServer")
			go s.sendLogToWebhook(s.requestEmbed(c, true))
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		start := time.Now()
		c.Next()

		logger.Info(fmt.Sprintf("[LOG] %s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start)), "WebServer")
		if c.Request.Method != http.MethodGet {
			go s.sendLogToWebhook(s.requestEmbed(c, false))
		}
	}
}

// requestEmbed captures what the webhook needs while c is still valid
func (s *Server) requestEmbed(c *gin.Context, suspicious bool) map[string]interface{} {
	title := fmt.Sprintf("💫 | Nueva solicitud al servidor web de tipo %s", c.Request.Method)
	color := 0x00AE86

	if suspicious {
		title = fmt.Sprintf("💫 | Solicitud Sospechosa Rechazada: %s %s", c.Request.Method, c.Request.URL.Path)
		color = 0xFFA500
	}

	query := c.Request.URL.RawQuery
	if query == "" {
		query = "{}"
	}

	return map[string]interface{}{
		"title": title,
		"description": fmt.Sprintf(
			"> **Ruta:** `%s`\n> **IP:** `%s`\n> **Host:** `%s`\n> **Estado:** `%d`\n> **Query:** ```%s```",
			c.Request.URL.Path,
			c.ClientIP(),
			c.Request.Host,
			c.Writer.Status(),
			query,
		),
		"color":     color,
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

// sendLogToWebhook posts a request embed to the web server webhook
func (s *Server) sendLogToWebhook(embed map[string]interface{}) {
	if s.webhookURL == "" {
		return
	}

	jsonData, err := json.Marshal(map[string]interface{}{
		"embeds": []interface{}{embed},
	})
	if err != nil {
		return
	}

	req, err := http.NewRequest(http.MethodPost, s.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
}

// rateLimitMiddleware implements a fixed-window limiter per client IP
func (s *Server) rateLimitMiddleware(config RateLimitConfig) gin.HandlerFunc {
	type clientInfo struct {
		count   int
		resetAt time.Time
	}
	var mu sync.Mutex
	clients := make(map[string]*clientInfo)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		info, exists := clients[ip]
		if !exists || now.After(info.resetAt) {
			info = &clientInfo{resetAt: now.Add(config.Window)}
			clients[ip] = info
		}
		info.count++
		count := info.count
		mu.Unlock()

		if count > config.MaxRequests {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too Many Requests",
				"message": "Demasiadas solicitudes, por favor intente de nuevo más tarde.",
				"status":  http.StatusTooManyRequests,
			})
			return
		}

		c.Next()
	}
}

// setupErrorHandlers sets up error handling routes
func (s *Server) setupErrorHandlers() {
	s.engine.HandleMethodNotAllowed = true

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "La ruta solicitada no existe.",
			"status":  http.StatusNotFound,
		})
	})

	s.engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error":   "Method Not Allowed",
			"message": "El método HTTP no está permitido para esta ruta.",
			"status":  http.StatusMethodNotAllowed,
		})
	})
}

func (s *Server) listen(port string) *http.Server {
	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info(fmt.Sprintf("🚀 Servidor escuchando en http://localhost:%s", port), "WebServer")
	return s.httpServer
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Start starts the web server and blocks until it stops
func (s *Server) Start(port string) error {
	return serve(s.listen(port))
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync(port string) {
	srv := s.listen(port)
	go func() {
		if err := serve(srv); err != nil {
			logger.Error(fmt.Sprintf("Error starting web server: %v", err), "WebServer")
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Group creates a new router group
func (s *Server) Group(path string, handlers ...gin.HandlerFunc) *gin.RouterGroup {
	return s.engine.Group(path, handlers...)
}

// ServeHTTP makes the server usable with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

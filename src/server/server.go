package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"price-relay/src/disruption"
	"price-relay/src/interfaces"
	"price-relay/src/logger"
	"price-relay/src/models"
	"price-relay/src/pricestore"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

type Server struct {
	Config   *models.MConfig
	Logger   *logger.Logger
	Hub      *Hub
	DB       interfaces.IDatabase
	Store    *pricestore.Store
	Detector *disruption.Detector

	engine    *gin.Engine
	startedAt time.Time
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewServer(cfg *models.MConfig, log *logger.Logger, hub *Hub, db interfaces.IDatabase, store *pricestore.Store, det *disruption.Detector) *Server {
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		Config:    cfg,
		Logger:    log,
		Hub:       hub,
		DB:        db,
		Store:     store,
		Detector:  det,
		engine:    gin.Default(),
		startedAt: time.Now(),
	}

	// CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Operational REST endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/prices", s.getPrices)
	s.engine.GET("/api/providers", s.getProviders)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)
	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"uptime":      time.Since(s.startedAt).Round(time.Second).String(),
		"connections": s.Hub.ConnectionCount(),
	})
}

// -----------------------------------------------------------------------------

func (s *Server) getPrices(c *gin.Context) {
	filter := models.MPriceFilter{
		Symbol:     c.Query("symbol"),
		ProviderID: c.Query("source"),
		ActiveOnly: c.Query("all") == "",
	}
	c.JSON(http.StatusOK, gin.H{"prices": s.Store.Snapshot(filter)})
}

// -----------------------------------------------------------------------------

func (s *Server) getProviders(c *gin.Context) {
	providers, err := s.DB.ListProviders()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type providerView struct {
		models.MProvider
		Disruption string `json:"disruption"`
	}
	out := make([]providerView, 0, len(providers))
	for _, p := range providers {
		out = append(out, providerView{
			MProvider:  p,
			Disruption: s.Detector.StateOf(p.Name).String(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

// -----------------------------------------------------------------------------
// WebSocket Handler
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleWebSocket(c *gin.Context) {
	var token *models.MAccessToken

	if raw := c.Query("token"); raw != "" {
		found, err := s.DB.FindAccessToken(raw)
		if err != nil {
			s.Logger.Error("Token lookup failed: %v", err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if found == nil || !found.Active || (!found.ExpiresAt.IsZero() && found.ExpiresAt.Before(time.Now())) {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token = found
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := newClient(s.Hub, conn, token)
	go client.writePump()
	go client.readPump()
}

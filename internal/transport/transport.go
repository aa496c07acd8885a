// Package transport is the HTTP + WebSocket `/api` surface of spec.md §6:
// patch/performance/app-state CRUD, session lifecycle, sequencer transport,
// direct MIDI injection, WebRTC negotiation, and a per-session event stream.
package transport

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/schollz/orchestron/internal/bridge"
	"github.com/schollz/orchestron/internal/engine"
	"github.com/schollz/orchestron/internal/persistence"
	"github.com/schollz/orchestron/internal/session"
	"github.com/schollz/orchestron/internal/types"
)

// Version is reported by GET /health.
const Version = "0.1.0"

// Server owns the gin engine plus every dependency handlers need.
type Server struct {
	engine   *gin.Engine
	sessions *session.Manager
	gateway  *persistence.Gateway
	bridges  *BridgeRegistry
	backend  string // reported by /health/realtime
	defaultStreaming bool
}

// Config configures NewServer's CORS policy, the reported engine backend,
// and the default audio output mode applied when a `start` request doesn't
// specify one explicitly.
type Config struct {
	CORSOrigins     []string
	EngineBackend   string
	DefaultStreaming bool
}

// NewServer wires every `/api` route onto a fresh gin engine. mgr must have
// been constructed with NewBridgeFactory(registry)-wrapped BridgeFactory so
// WebRTC negotiation can find the bridge belonging to a given session; see
// NewBridgeFactory.
func NewServer(mgr *session.Manager, gateway *persistence.Gateway, bridges *BridgeRegistry, cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	r.Use(cors.New(corsCfg))

	s := &Server{
		engine:   r,
		sessions: mgr,
		gateway:  gateway,
		bridges:  bridges,
		backend:  cfg.EngineBackend,
		defaultStreaming: cfg.DefaultStreaming,
	}
	s.registerRoutes()
	return s
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("[TRANSPORT] %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")

	api.GET("/health", s.handleHealth)
	api.GET("/health/realtime", s.handleHealthRealtime)
	api.GET("/opcodes", s.handleOpcodes)

	api.GET("/patches", s.handleListPatches)
	api.POST("/patches", s.handleCreatePatch)
	api.GET("/patches/:id", s.handleGetPatch)
	api.PUT("/patches/:id", s.handlePutPatch)
	api.DELETE("/patches/:id", s.handleDeletePatch)

	api.GET("/performances", s.handleListPerformances)
	api.POST("/performances", s.handleCreatePerformance)
	api.GET("/performances/:id", s.handleGetPerformance)
	api.PUT("/performances/:id", s.handlePutPerformance)
	api.DELETE("/performances/:id", s.handleDeletePerformance)

	api.GET("/app-state", s.handleGetAppState)
	api.PUT("/app-state", s.handlePutAppState)

	api.POST("/sessions", s.handleCreateSession)
	api.POST("/sessions/:id/compile", s.handleCompile)
	api.POST("/sessions/:id/start", s.handleStart)
	api.POST("/sessions/:id/stop", s.handleStop)
	api.POST("/sessions/:id/panic", s.handlePanic)

	api.PUT("/sessions/:id/sequencer/config", s.handleSequencerConfig)
	api.POST("/sessions/:id/sequencer/start", s.handleSequencerStart)
	api.POST("/sessions/:id/sequencer/stop", s.handleSequencerStop)
	api.GET("/sessions/:id/sequencer/status", s.handleSequencerStatus)
	api.POST("/sessions/:id/sequencer/tracks/:track_id/queue-pad", s.handleQueuePad)

	api.POST("/sessions/:id/midi-event", s.handleMIDIEvent)
	api.POST("/sessions/:id/audio/webrtc", s.handleWebRTCNegotiate)

	api.GET("/midi/inputs", s.handleMIDIInputs)
	api.POST("/sessions/:id/midi-input", s.handleMIDIInputBind)

	s.engine.GET("/ws/sessions/:id", s.handleWebSocket)
}

// Run starts serving on addr, blocking until the listener errors.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
}

func (s *Server) handleHealthRealtime(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"engine_backend": s.backend, "clock_status": "per-session"})
}

func (s *Server) handleOpcodes(c *gin.Context) {
	c.JSON(http.StatusOK, opcodeDefinitions())
}

// BridgeRegistry tracks the live *bridge.Bridge for every streaming session,
// keyed by session ID. A BridgeFactory built from NewBridgeFactory registers
// into it on construction; handleWebRTCNegotiate looks sessions up here
// since session.AudioBridge's narrow interface doesn't expose Negotiate.
type BridgeRegistry struct {
	mu sync.Mutex
	m  map[string]*bridge.Bridge
}

// NewBridgeRegistry constructs the shared registry passed to both
// NewBridgeFactory (for session.NewManager) and NewServer.
func NewBridgeRegistry() *BridgeRegistry {
	return &BridgeRegistry{m: map[string]*bridge.Bridge{}}
}

func (r *BridgeRegistry) set(sessionID string, b *bridge.Bridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[sessionID] = b
}

func (r *BridgeRegistry) get(sessionID string) (*bridge.Bridge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.m[sessionID]
	return b, ok
}

func (r *BridgeRegistry) delete(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, sessionID)
}

// NewBridgeFactory builds a session.BridgeFactory that constructs a real
// bridge.Bridge and registers it into registry, keyed by session ID, so a
// later /audio/webrtc request against the same session can find it again.
func NewBridgeFactory(registry *BridgeRegistry) session.BridgeFactory {
	return func(sessionID string, eng engine.Adapter, cfg types.EngineConfig, emit func(types.Event)) session.AudioBridge {
		b := bridge.New(sessionID, eng, cfg, emit)
		registry.set(sessionID, b)
		return b
	}
}

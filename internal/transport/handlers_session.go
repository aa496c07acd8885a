package transport

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/schollz/orchestron/internal/engine"
	"github.com/schollz/orchestron/internal/midiio"
	"github.com/schollz/orchestron/internal/session"
	"github.com/schollz/orchestron/internal/types"
)

// trackIndexFromParam resolves a :track_id path segment to a Pattern.Tracks
// index; tracks have no separate public ID in the sequencer status surface,
// so the URL segment is the numeric index itself.
func trackIndexFromParam(raw string) (int, error) {
	return strconv.Atoi(raw)
}

func (s *Server) getSession(c *gin.Context) (*session.Session, bool) {
	sess, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return nil, false
	}
	return sess, true
}

type createSessionRequest struct {
	Assignments []types.InstrumentAssignment
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := s.sessions.Create(req.Assignments)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": sess.ID, "state": sess.State().String()})
}

func (s *Server) handleCompile(c *gin.Context) {
	if _, ok := s.getSession(c); !ok {
		return
	}
	result, err := s.sessions.Compile(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(result.Diagnostics) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"diagnostics": result.Diagnostics})
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": result.Document})
}

type startSessionRequest struct {
	Streaming *bool
	Pattern   *types.Pattern
}

func (s *Server) handleStart(c *gin.Context) {
	sess, ok := s.getSession(c)
	if !ok {
		return
	}
	var req startSessionRequest
	// An empty body is a valid `start` with no pattern, falling back to the
	// server's configured default audio output mode.
	_ = c.ShouldBindJSON(&req)

	streaming := s.defaultStreaming
	if req.Streaming != nil {
		streaming = *req.Streaming
	}

	opts := session.StartOptions{Pattern: req.Pattern}
	if streaming {
		opts.Mode = engine.ModeStreaming
	}
	if err := s.sessions.Start(sess.ID, opts); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": sess.State().String()})
}

func (s *Server) handleStop(c *gin.Context) {
	sess, ok := s.getSession(c)
	if !ok {
		return
	}
	if err := s.sessions.Stop(sess.ID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": sess.State().String()})
}

func (s *Server) handlePanic(c *gin.Context) {
	sess, ok := s.getSession(c)
	if !ok {
		return
	}
	if err := s.sessions.Panic(sess.ID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": sess.State().String()})
}

func (s *Server) handleSequencerConfig(c *gin.Context) {
	sess, ok := s.getSession(c)
	if !ok {
		return
	}
	var pattern types.Pattern
	if err := c.ShouldBindJSON(&pattern); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.sessions.SetPattern(sess.ID, &pattern); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSequencerStart(c *gin.Context) {
	sess, ok := s.getSession(c)
	if !ok {
		return
	}
	if err := s.sessions.StartSequencer(sess.ID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSequencerStop(c *gin.Context) {
	sess, ok := s.getSession(c)
	if !ok {
		return
	}
	if err := s.sessions.StopSequencer(sess.ID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSequencerStatus(c *gin.Context) {
	sess, ok := s.getSession(c)
	if !ok {
		return
	}
	status, err := s.sessions.SequencerStatus(sess.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

type queuePadRequest struct {
	PadIndex int
}

func (s *Server) handleQueuePad(c *gin.Context) {
	sess, ok := s.getSession(c)
	if !ok {
		return
	}
	var req queuePadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	trackIndex, err := trackIndexFromParam(c.Param("track_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err := s.sessions.QueuePad(sess.ID, trackIndex, req.PadIndex); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type midiEventRequest struct {
	Type       types.MIDIMessageKind
	Channel    int
	Note       int
	Velocity   float64
	Controller int
	Value      float64
}

func (s *Server) handleMIDIEvent(c *gin.Context) {
	sess, ok := s.getSession(c)
	if !ok {
		return
	}
	var req midiEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Type == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "type is required"})
		return
	}
	ev := types.MIDIEvent{
		Kind:       req.Type,
		Channel:    req.Channel,
		Note:       req.Note,
		Velocity:   req.Velocity,
		Controller: req.Controller,
		Value:      req.Value,
	}
	if err := s.sessions.SendMIDIEvent(sess.ID, ev); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMIDIInputs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"names": midiio.Devices()})
}

type midiInputBindRequest struct {
	Name string
}

func (s *Server) handleMIDIInputBind(c *gin.Context) {
	sess, ok := s.getSession(c)
	if !ok {
		return
	}
	var req midiInputBindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.sessions.BindMIDIInput(sess.ID, req.Name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

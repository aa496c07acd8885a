package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type webrtcNegotiateRequest struct {
	Type string
	SDP  string
}

type webrtcNegotiateResponse struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// handleWebRTCNegotiate looks up the live bridge for this session and hands
// it the browser's offer SDP, per the `negotiate` operation of spec.md §4.8.
// The bridge only exists once the session has been started in streaming
// mode; a session with no registered bridge is reported as 422, matching
// every other malformed-negotiation failure rather than inventing a
// separate status for "streaming not enabled".
func (s *Server) handleWebRTCNegotiate(c *gin.Context) {
	sess, ok := s.getSession(c)
	if !ok {
		return
	}

	var req webrtcNegotiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	br, ok := s.bridges.get(sess.ID)
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "session has no active audio bridge"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	answerSDP, err := br.Negotiate(ctx, req.SDP)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, webrtcNegotiateResponse{Type: "answer", SDP: answerSDP})
}

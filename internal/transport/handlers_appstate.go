package transport

import (
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// handleGetAppState returns the last persisted app-state snapshot verbatim.
// A never-saved state is reported as an empty object rather than a 404,
// since every client starts from a blank snapshot.
func (s *Server) handleGetAppState(c *gin.Context) {
	raw, err := s.gateway.LoadAppState()
	if err != nil {
		if os.IsNotExist(err) {
			c.Data(http.StatusOK, "application/json", []byte("{}"))
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

// handlePutAppState queues the request body verbatim for the 400ms debounced
// write, per spec.md §4.9. The client owns the blob's shape; this gateway
// never interprets it.
func (s *Server) handlePutAppState(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.gateway.SaveAppStateDebounced(body)
	c.Status(http.StatusAccepted)
}

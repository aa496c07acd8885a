package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/schollz/orchestron/internal/types"
)

func (s *Server) handleListPerformances(c *gin.Context) {
	ids, err := s.gateway.ListPerformances()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids})
}

func (s *Server) handleCreatePerformance(c *gin.Context) {
	var perf types.Performance
	if err := c.ShouldBindJSON(&perf); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if perf.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "performance id is required"})
		return
	}
	if err := s.gateway.SavePerformance(perf.ID, perf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, perf)
}

func (s *Server) handleGetPerformance(c *gin.Context) {
	perf, err := s.gateway.LoadPerformance(c.Param("id"))
	if err != nil {
		writeDocumentError(c, err)
		return
	}
	c.JSON(http.StatusOK, perf)
}

func (s *Server) handlePutPerformance(c *gin.Context) {
	id := c.Param("id")
	var perf types.Performance
	if err := c.ShouldBindJSON(&perf); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	perf.ID = id
	if err := s.gateway.SavePerformance(id, perf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, perf)
}

func (s *Server) handleDeletePerformance(c *gin.Context) {
	if err := s.gateway.DeletePerformance(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

package transport

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/schollz/orchestron/internal/persistence"
	"github.com/schollz/orchestron/internal/types"
)

// writeDocumentError maps a persistence read/write failure to the HTTP
// status spec.md §6's error table assigns it: 404 for a missing document,
// 409 for one written by a newer schema than this gateway understands, 500
// otherwise.
func writeDocumentError(c *gin.Context, err error) {
	if os.IsNotExist(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var schemaErr *persistence.ErrUnsupportedSchema
	if errors.As(err, &schemaErr) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (s *Server) handleListPatches(c *gin.Context) {
	ids, err := s.gateway.ListPatches()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids})
}

func (s *Server) handleCreatePatch(c *gin.Context) {
	var patch types.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if patch.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "patch id is required"})
		return
	}
	if err := s.gateway.SavePatch(patch.ID, patch); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, patch)
}

func (s *Server) handleGetPatch(c *gin.Context) {
	patch, err := s.gateway.LoadPatch(c.Param("id"))
	if err != nil {
		writeDocumentError(c, err)
		return
	}
	c.JSON(http.StatusOK, patch)
}

func (s *Server) handlePutPatch(c *gin.Context) {
	id := c.Param("id")
	var patch types.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	patch.ID = id
	if err := s.gateway.SavePatch(id, patch); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, patch)
}

func (s *Server) handleDeletePatch(c *gin.Context) {
	if err := s.gateway.DeletePatch(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/KevinKickass/OpenUnitSync/internal/interfaces"
	"github.com/KevinKickass/OpenUnitSync/internal/storage"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// POST /api/v1/sync
func (s *Server) startSync(c *gin.Context) {
	var req interfaces.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SYNC_400", "Invalid request body", err.Error()))
		return
	}

	runID, err := s.lm.StartSync(c.Request.Context(), req)
	if err != nil {
		respondError(c, "SYNC", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": runID,
		"status": types.RunPlanning.String(),
	})
}

// GET /api/v1/sync/:id
func (s *Server) getSyncStatus(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SYNC_400", "Invalid run ID", err.Error()))
		return
	}

	status, ok := s.lm.RunStatus(runID)
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("SYNC_404", "Run not found", nil))
		return
	}

	c.JSON(http.StatusOK, status)
}

// GET /api/v1/sync/:id/report
func (s *Server) getSyncReport(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SYNC_400", "Invalid run ID", err.Error()))
		return
	}

	report, err := s.lm.RunReport(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse("SYNC_404", "Report not available", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("SYNC_500", "Failed to load report", err.Error()))
		return
	}

	c.JSON(http.StatusOK, report.View())
}

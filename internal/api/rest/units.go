package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// POST /api/v1/units/scan
func (s *Server) scanUnits(c *gin.Context) {
	result := s.lm.Scan(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"units":      result.Units,
		"count":      len(result.Units),
		"conflicts":  result.Conflicts,
		"scanned_at": result.ScannedAt,
	})
}

// GET /api/v1/units
func (s *Server) listUnits(c *gin.Context) {
	result := s.lm.LastScan()

	c.JSON(http.StatusOK, gin.H{
		"units":      result.Units,
		"count":      len(result.Units),
		"conflicts":  result.Conflicts,
		"scanned_at": result.ScannedAt,
	})
}

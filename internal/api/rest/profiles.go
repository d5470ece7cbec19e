package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/KevinKickass/OpenUnitSync/internal/interfaces"
	"github.com/KevinKickass/OpenUnitSync/internal/storage"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
	"github.com/KevinKickass/OpenUnitSync/internal/units"
)

// GET /api/v1/profiles/:id
func (s *Server) getProfile(c *gin.Context) {
	profileID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("PROFILE_400", "Invalid profile ID", err.Error()))
		return
	}

	profile, err := s.lm.GetProfile(c.Request.Context(), profileID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, units.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse("PROFILE_404", "Profile not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("PROFILE_500", "Failed to load profile", err.Error()))
		return
	}

	c.JSON(http.StatusOK, profile)
}

// PUT /api/v1/profiles/:id
func (s *Server) putProfile(c *gin.Context) {
	profileID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("PROFILE_400", "Invalid profile ID", err.Error()))
		return
	}

	var profile types.StoredUnitProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("PROFILE_400", "Invalid request body", err.Error()))
		return
	}
	if profile.ID != uuid.Nil && profile.ID != profileID {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("PROFILE_400", "Profile ID does not match URL", nil))
		return
	}
	profile.ID = profileID

	if err := s.lm.SaveProfile(c.Request.Context(), &profile); err != nil {
		respondError(c, "PROFILE", err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// respondError maps validation errors to 422, disabled storage to 503 and
// everything else to 500.
func respondError(c *gin.Context, prefix string, err error) {
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusUnprocessableEntity, types.NewErrorResponse(verr.Code, verr.Message, verr.Units))
		return
	}
	if errors.Is(err, interfaces.ErrNoDatabase) {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(prefix+"_503", "Database storage is disabled", nil))
		return
	}
	c.JSON(http.StatusInternalServerError, types.NewErrorResponse(prefix+"_500", "Request failed", err.Error()))
}

package system

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/KevinKickass/OpenUnitSync/internal/interfaces"
	"github.com/KevinKickass/OpenUnitSync/internal/storage"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
	"github.com/KevinKickass/OpenUnitSync/internal/units"
)

var ErrNoDatabase = interfaces.ErrNoDatabase

// ProfileSource serves profiles from the database and falls back to the
// profile files of the search paths.
type ProfileSource struct {
	db        *storage.PostgresClient
	files     *units.ProfileLoader
	validator *units.Validator
}

func NewProfileSource(db *storage.PostgresClient, files *units.ProfileLoader, validator *units.Validator) *ProfileSource {
	return &ProfileSource{db: db, files: files, validator: validator}
}

func (s *ProfileSource) GetUnitProfile(ctx context.Context, id uuid.UUID) (*types.StoredUnitProfile, error) {
	if s.db != nil {
		profile, err := s.db.GetUnitProfile(ctx, id)
		if err == nil {
			return profile, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	return s.files.GetUnitProfile(ctx, id)
}

// SaveUnitProfile validates the profile and stores it in the database.
func (s *ProfileSource) SaveUnitProfile(ctx context.Context, profile *types.StoredUnitProfile) error {
	if err := s.validator.ValidateProfile(profile); err != nil {
		return err
	}
	if s.db == nil {
		return fmt.Errorf("save profile %s: %w", profile.ID, ErrNoDatabase)
	}
	return s.db.SaveUnitProfile(ctx, profile)
}

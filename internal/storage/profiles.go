package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

var ErrNotFound = errors.New("not found")

// GetUnitProfile loads a stored profile by id.
func (p *PostgresClient) GetUnitProfile(ctx context.Context, id uuid.UUID) (*types.StoredUnitProfile, error) {
	var definition []byte
	err := p.pool.QueryRow(ctx, `
		SELECT definition FROM unit_profiles WHERE id = $1
	`, id).Scan(&definition)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("unit profile %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load unit profile: %w", err)
	}

	var profile types.StoredUnitProfile
	if err := json.Unmarshal(definition, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal unit profile %s: %w", id, err)
	}
	profile.ID = id

	return &profile, nil
}

// SaveUnitProfile upserts a profile. The caller validates it first.
func (p *PostgresClient) SaveUnitProfile(ctx context.Context, profile *types.StoredUnitProfile) error {
	definition, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal unit profile: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO unit_profiles (id, project_id, name, ip_address, can_id, definition)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET
			project_id = EXCLUDED.project_id,
			name = EXCLUDED.name,
			ip_address = EXCLUDED.ip_address,
			can_id = EXCLUDED.can_id,
			definition = EXCLUDED.definition,
			updated_at = NOW()
	`, profile.ID, profile.ProjectID, profile.Name, profile.IPAddress, profile.CanID, definition)
	if err != nil {
		return fmt.Errorf("failed to save unit profile: %w", err)
	}

	return nil
}

func (p *PostgresClient) ListUnitProfiles(ctx context.Context) ([]UnitProfileRow, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, project_id, name, ip_address, can_id, updated_at
		FROM unit_profiles
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unit profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]UnitProfileRow, 0)
	for rows.Next() {
		var row UnitProfileRow
		if err := rows.Scan(&row.ID, &row.ProjectID, &row.Name, &row.IPAddress, &row.CanID, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unit profile: %w", err)
		}
		profiles = append(profiles, row)
	}

	return profiles, rows.Err()
}

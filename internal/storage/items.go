package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// GetAll returns the project items of one kind ordered by address.
func (p *PostgresClient) GetAll(ctx context.Context, kind types.DeviceKind, projectID uuid.UUID) ([]types.ProjectItem, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, project_id, kind, name, address, attributes
		FROM project_items
		WHERE project_id = $1 AND kind = $2
		ORDER BY address
	`, projectID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query project items: %w", err)
	}
	defer rows.Close()

	items := make([]types.ProjectItem, 0)
	for rows.Next() {
		var item types.ProjectItem
		var kindText string
		var attrJSON []byte

		if err := rows.Scan(&item.ID, &item.ProjectID, &kindText, &item.Name, &item.Address, &attrJSON); err != nil {
			return nil, fmt.Errorf("failed to scan project item: %w", err)
		}
		item.Kind = types.DeviceKind(kindText)

		if len(attrJSON) > 0 {
			if err := json.Unmarshal(attrJSON, &item.Attributes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal attributes of %s: %w", item.ID, err)
			}
		}

		items = append(items, item)
	}

	return items, rows.Err()
}

// Create inserts a project item. An existing item with the same address is
// returned unchanged.
func (p *PostgresClient) Create(ctx context.Context, kind types.DeviceKind, projectID uuid.UUID, item types.ProjectItem) (types.ProjectItem, error) {
	attrs := item.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrJSON, err := json.Marshal(attrs)
	if err != nil {
		return types.ProjectItem{}, fmt.Errorf("failed to marshal attributes: %w", err)
	}

	created := item
	created.Kind = kind
	created.ProjectID = projectID

	err = p.pool.QueryRow(ctx, `
		INSERT INTO project_items (project_id, kind, name, address, attributes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (project_id, kind, address)
		DO UPDATE SET address = EXCLUDED.address
		RETURNING id, name
	`, projectID, string(kind), item.Name, item.Address, attrJSON).Scan(&created.ID, &created.Name)
	if err != nil {
		return types.ProjectItem{}, fmt.Errorf("failed to insert project item: %w", err)
	}

	return created, nil
}

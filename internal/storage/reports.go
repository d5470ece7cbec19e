package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

func (p *PostgresClient) SaveSyncReport(ctx context.Context, report *types.SyncReport) error {
	results, err := json.Marshal(report.Results())
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	summary := report.Summary()
	_, err = p.pool.Exec(ctx, `
		INSERT INTO sync_reports (run_id, started_at, completed_at, succeeded, failed, results)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO NOTHING
	`, report.RunID, report.StartedAt, report.CompletedAt, summary.Succeeded, summary.Failed, results)
	if err != nil {
		return fmt.Errorf("failed to save sync report: %w", err)
	}

	return nil
}

func (p *PostgresClient) GetSyncReport(ctx context.Context, runID uuid.UUID) (*types.SyncReport, error) {
	var startedAt, completedAt time.Time
	var resultsJSON []byte

	err := p.pool.QueryRow(ctx, `
		SELECT started_at, completed_at, results
		FROM sync_reports
		WHERE run_id = $1
	`, runID).Scan(&startedAt, &completedAt, &resultsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sync report %s: %w", runID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load sync report: %w", err)
	}

	var results []types.OperationResult
	if err := json.Unmarshal(resultsJSON, &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}

	return types.NewSyncReport(runID, startedAt, completedAt, results), nil
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"labelplane/internal/store"
)

const runColumns = `id, order_id, dieline_id, run_number, status, slot_assignments,
	frames_count, meters_to_print, quantity_override, split_strategy, split_counts,
	pdf_url, proof_url, renderer_frames, renderer_meters, error_message,
	created_at, updated_at`

// CreateRun inserts a new production run row.
// Slot assignments are stored as a JSON array.
func (s *Store) CreateRun(ctx context.Context, tx store.DBTransaction, run *store.ProductionRun) error {
	executor := s.getExecutor(tx)

	slotsJSON, err := json.Marshal(run.SlotAssignments)
	if err != nil {
		return fmt.Errorf("failed to marshal slot assignments: %w", err)
	}

	query := `
		INSERT INTO production_runs
			(id, order_id, dieline_id, run_number, status, slot_assignments,
			 frames_count, meters_to_print, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`

	_, err = executor.ExecContext(ctx, query,
		run.ID,
		run.OrderID,
		run.DielineID,
		run.RunNumber,
		run.Status,
		slotsJSON,
		run.FramesCount,
		run.MetersToPrint,
		run.CreatedAt,
	)
	return err
}

// GetRunByID returns a run by its ID.
func (s *Store) GetRunByID(ctx context.Context, id uuid.UUID) (*store.ProductionRun, error) {
	query := fmt.Sprintf("SELECT %s FROM production_runs WHERE id = $1", runColumns)

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRunsByOrder returns an order's runs in run_number order, optionally
// filtered by status.
func (s *Store) ListRunsByOrder(ctx context.Context, orderID uuid.UUID, statuses ...store.RunStatus) ([]store.ProductionRun, error) {
	args := []interface{}{orderID}
	query := fmt.Sprintf("SELECT %s FROM production_runs WHERE order_id = $1", runColumns)

	if len(statuses) > 0 {
		query += " AND status = ANY($2)"
		states := make([]string, len(statuses))
		for i, st := range statuses {
			states[i] = string(st)
		}
		args = append(args, pq.Array(states))
	}
	query += " ORDER BY run_number ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var runs []store.ProductionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// MarkImposing transitions a run planned -> imposing.
// The WHERE guard on current status is the mutual-exclusion point: if
// another invocation already claimed the run, zero rows match and the
// caller must skip it.
func (s *Store) MarkImposing(ctx context.Context, tx store.DBTransaction, runID uuid.UUID) (bool, error) {
	executor := s.getExecutor(tx)

	res, err := executor.ExecContext(ctx, `
		UPDATE production_runs
		SET status = $1, error_message = NULL, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, store.RunStatusImposing, runID, store.RunStatusPlanned)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ApproveRun transitions imposing -> approved and stores the renderer
// result. Guarded on status so a poll and a completion callback racing on
// the same run cannot both apply.
func (s *Store) ApproveRun(ctx context.Context, tx store.DBTransaction, runID uuid.UUID, result store.RunResult) (bool, error) {
	executor := s.getExecutor(tx)

	res, err := executor.ExecContext(ctx, `
		UPDATE production_runs
		SET status = $1, pdf_url = $2, proof_url = $3,
		    renderer_frames = $4, renderer_meters = $5,
		    error_message = NULL, updated_at = NOW()
		WHERE id = $6 AND status = $7
	`, store.RunStatusApproved, result.PDFURL, nullIfEmpty(result.ProofURL),
		result.FrameCount, result.TotalMeters, runID, store.RunStatusImposing)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FailRun persists the error message for operator visibility and reverts
// the run to planned so it stays eligible for re-dispatch. Guarded on
// status like ApproveRun: a late or duplicate rejection callback racing
// a completed approval matches zero rows instead of reverting a terminal
// state.
func (s *Store) FailRun(ctx context.Context, tx store.DBTransaction, runID uuid.UUID, errMsg string) (bool, error) {
	executor := s.getExecutor(tx)

	res, err := executor.ExecContext(ctx, `
		UPDATE production_runs
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, store.RunStatusPlanned, errMsg, runID, store.RunStatusImposing)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ResetRun forces a run back to planned and clears imposed output,
// regardless of current state. Used by operator reprocess mode.
func (s *Store) ResetRun(ctx context.Context, tx store.DBTransaction, runID uuid.UUID) error {
	executor := s.getExecutor(tx)

	_, err := executor.ExecContext(ctx, `
		UPDATE production_runs
		SET status = $1, pdf_url = NULL, proof_url = NULL,
		    renderer_frames = NULL, renderer_meters = NULL,
		    error_message = NULL, updated_at = NOW()
		WHERE id = $2
	`, store.RunStatusPlanned, runID)
	return err
}

// SetQuantityOverride locks (or, with qty 0, clears) the per-slot quantity
// override and stores the recomputed frame count and meters.
func (s *Store) SetQuantityOverride(ctx context.Context, tx store.DBTransaction, runID uuid.UUID, qty, framesCount int, meters float64) error {
	executor := s.getExecutor(tx)

	_, err := executor.ExecContext(ctx, `
		UPDATE production_runs
		SET quantity_override = $1, frames_count = $2, meters_to_print = $3, updated_at = NOW()
		WHERE id = $4
	`, qty, framesCount, meters, runID)
	return err
}

// SetSplitPlan stores the chosen roll split plan. An empty strategy
// clears any stored plan.
func (s *Store) SetSplitPlan(ctx context.Context, tx store.DBTransaction, runID uuid.UUID, strategy store.SplitStrategy, counts []int) error {
	executor := s.getExecutor(tx)

	if strategy == "" {
		_, err := executor.ExecContext(ctx, `
			UPDATE production_runs
			SET split_strategy = NULL, split_counts = NULL, updated_at = NOW()
			WHERE id = $1
		`, runID)
		return err
	}

	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to marshal split counts: %w", err)
	}

	_, err = executor.ExecContext(ctx, `
		UPDATE production_runs
		SET split_strategy = $1, split_counts = $2, updated_at = NOW()
		WHERE id = $3
	`, strategy, countsJSON, runID)
	return err
}

// CountRunsByStatus returns how many runs are in the given state.
func (s *Store) CountRunsByStatus(ctx context.Context, status store.RunStatus) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM production_runs WHERE status = $1", status).Scan(&count)
	return count, err
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*store.ProductionRun, error) {
	var run store.ProductionRun
	var slotsJSON []byte
	var splitStrategy *string
	var splitJSON []byte

	err := row.Scan(
		&run.ID, &run.OrderID, &run.DielineID, &run.RunNumber, &run.Status, &slotsJSON,
		&run.FramesCount, &run.MetersToPrint, &run.QuantityOverride, &splitStrategy, &splitJSON,
		&run.PDFURL, &run.ProofURL, &run.RendererFrames, &run.RendererMeters, &run.ErrorMessage,
		&run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(slotsJSON, &run.SlotAssignments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slot assignments: %w", err)
	}
	if splitStrategy != nil {
		run.SplitStrategy = store.SplitStrategy(*splitStrategy)
	}
	if len(splitJSON) > 0 {
		if err := json.Unmarshal(splitJSON, &run.SplitCounts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal split counts: %w", err)
		}
	}

	return &run, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

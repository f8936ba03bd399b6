package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// DielineStore handles retrieving printing template geometry.
// Dielines are reference data owned by the wider application.
type DielineStore interface {
	// GetDielineByID returns a dieline by its ID.
	GetDielineByID(ctx context.Context, id uuid.UUID) (*Dieline, error)
}

// ItemStore handles label items (artwork + ordered quantity).
type ItemStore interface {
	// ListItemsByOrder returns all label items belonging to an order.
	ListItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]LabelItem, error)

	// GetItemByID returns a single label item.
	GetItemByID(ctx context.Context, id uuid.UUID) (*LabelItem, error)
}

// RunStore handles the persistence of ProductionRun rows and the status
// transitions the orchestrator depends on.
type RunStore interface {
	// CreateRun inserts a new production run.
	CreateRun(ctx context.Context, tx DBTransaction, run *ProductionRun) error

	// GetRunByID returns a run by its ID.
	GetRunByID(ctx context.Context, id uuid.UUID) (*ProductionRun, error)

	// ListRunsByOrder returns an order's runs in run_number order.
	// When statuses is non-empty only runs in one of those states are returned.
	ListRunsByOrder(ctx context.Context, orderID uuid.UUID, statuses ...RunStatus) ([]ProductionRun, error)

	// MarkImposing transitions a run planned -> imposing.
	// It returns false without error when the run is no longer planned,
	// meaning another invocation already claimed it.
	MarkImposing(ctx context.Context, tx DBTransaction, runID uuid.UUID) (bool, error)

	// ApproveRun transitions imposing -> approved and stores the renderer
	// result. A no-op (false) if the run already left imposing, so a poll
	// and a completion callback cannot double-apply.
	ApproveRun(ctx context.Context, tx DBTransaction, runID uuid.UUID, result RunResult) (bool, error)

	// FailRun records a human-readable error and reverts the run to
	// planned so it stays eligible for re-dispatch. A no-op (false) if
	// the run already left imposing, so a late rejection callback
	// cannot clobber an approved run.
	FailRun(ctx context.Context, tx DBTransaction, runID uuid.UUID, errMsg string) (bool, error)

	// ResetRun clears imposed-output fields and forces status back to
	// planned regardless of current state (operator reprocess mode).
	ResetRun(ctx context.Context, tx DBTransaction, runID uuid.UUID) error

	// SetQuantityOverride locks a per-slot quantity for the run along with
	// the recomputed frame count and meters. qty 0 clears the override.
	SetQuantityOverride(ctx context.Context, tx DBTransaction, runID uuid.UUID, qty, framesCount int, meters float64) error

	// SetSplitPlan stores the chosen roll split plan for the run.
	SetSplitPlan(ctx context.Context, tx DBTransaction, runID uuid.UUID, strategy SplitStrategy, counts []int) error

	// CountRunsByStatus returns how many runs are currently in the given
	// state, across all orders. Backs the lifecycle gauges.
	CountRunsByStatus(ctx context.Context, status RunStatus) (int64, error)
}

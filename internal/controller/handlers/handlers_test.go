package handlers

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"labelplane/internal/imposer"
	"labelplane/internal/store"
)

// Mock transaction
type mockTx struct {
	committed  bool
	rolledBack bool
}

func (m *mockTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (m *mockTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (m *mockTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func (m *mockTx) Commit() error { m.committed = true; return nil }

func (m *mockTx) Rollback() error { m.rolledBack = true; return nil }

// Mock Store
type mockStore struct {
	beginTxErr error
	pingErr    error
	lastTx     *mockTx

	// Dieline hooks
	dielineResp *store.Dieline
	dielineErr  error

	// Item hooks
	itemsResp []store.LabelItem
	itemsErr  error
	itemResp  *store.LabelItem
	itemErr   error

	// Run hooks
	createRunErr   error
	createdRuns    []store.ProductionRun
	runResp        *store.ProductionRun
	runErr         error
	listRunsResp   []store.ProductionRun
	listRunsErr    error
	approveRunOK   bool
	approveRunErr  error
	failRunOK      bool
	failRunErr     error
	setOverrideErr error
	setSplitErr    error
	countByStatus  int64

	// Spies
	capturedStatuses []store.RunStatus
	capturedOverride struct {
		qty    int
		frames int
		meters float64
	}
	capturedSplit struct {
		strategy store.SplitStrategy
		counts   []int
	}
	capturedResult  store.RunResult
	capturedFailMsg string
}

func (m *mockStore) BeginTx(ctx context.Context) (store.Tx, error) {
	if m.beginTxErr != nil {
		return nil, m.beginTxErr
	}
	m.lastTx = &mockTx{}
	return m.lastTx, nil
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *mockStore) GetDielineByID(ctx context.Context, id uuid.UUID) (*store.Dieline, error) {
	return m.dielineResp, m.dielineErr
}

func (m *mockStore) ListItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]store.LabelItem, error) {
	return m.itemsResp, m.itemsErr
}

func (m *mockStore) GetItemByID(ctx context.Context, id uuid.UUID) (*store.LabelItem, error) {
	return m.itemResp, m.itemErr
}

func (m *mockStore) CreateRun(ctx context.Context, tx store.DBTransaction, run *store.ProductionRun) error {
	if m.createRunErr != nil {
		return m.createRunErr
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	m.createdRuns = append(m.createdRuns, *run)
	return nil
}

func (m *mockStore) GetRunByID(ctx context.Context, id uuid.UUID) (*store.ProductionRun, error) {
	return m.runResp, m.runErr
}

func (m *mockStore) ListRunsByOrder(ctx context.Context, orderID uuid.UUID, statuses ...store.RunStatus) ([]store.ProductionRun, error) {
	m.capturedStatuses = statuses
	return m.listRunsResp, m.listRunsErr
}

func (m *mockStore) MarkImposing(ctx context.Context, tx store.DBTransaction, runID uuid.UUID) (bool, error) {
	return true, nil
}

func (m *mockStore) ApproveRun(ctx context.Context, tx store.DBTransaction, runID uuid.UUID, result store.RunResult) (bool, error) {
	m.capturedResult = result
	return m.approveRunOK, m.approveRunErr
}

func (m *mockStore) FailRun(ctx context.Context, tx store.DBTransaction, runID uuid.UUID, errMsg string) (bool, error) {
	m.capturedFailMsg = errMsg
	return m.failRunOK, m.failRunErr
}

func (m *mockStore) ResetRun(ctx context.Context, tx store.DBTransaction, runID uuid.UUID) error {
	return nil
}

func (m *mockStore) SetQuantityOverride(ctx context.Context, tx store.DBTransaction, runID uuid.UUID, qty, framesCount int, meters float64) error {
	m.capturedOverride.qty = qty
	m.capturedOverride.frames = framesCount
	m.capturedOverride.meters = meters
	return m.setOverrideErr
}

func (m *mockStore) SetSplitPlan(ctx context.Context, tx store.DBTransaction, runID uuid.UUID, strategy store.SplitStrategy, counts []int) error {
	m.capturedSplit.strategy = strategy
	m.capturedSplit.counts = counts
	return m.setSplitErr
}

func (m *mockStore) CountRunsByStatus(ctx context.Context, status store.RunStatus) (int64, error) {
	return m.countByStatus, nil
}

// Mock batch runner
type mockRunner struct {
	mu      sync.Mutex
	calls   int
	tracker *imposer.Tracker
	block   chan struct{} // when set, ImposeOrder waits on it
	err     error         // returned before the tracker sees anything
}

func (m *mockRunner) ImposeOrder(ctx context.Context, orderID uuid.UUID, reprocess bool) (*imposer.BatchResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.block != nil {
		<-m.block
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.tracker != nil {
		m.tracker.Finish(imposer.BatchComplete)
	}
	return &imposer.BatchResult{}, nil
}

func (m *mockRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// testDieline yields 500 labels per slot per frame: five rows of 1.524mm
// stack to a 7.62mm repeat, and 100 repeats fit the 762mm frame.
func testDieline() *store.Dieline {
	return &store.Dieline{
		ID:            uuid.New(),
		Name:          "test-dieline",
		RollWidthMM:   330,
		LabelWidthMM:  60,
		LabelHeightMM: 1.524,
		ColumnsAcross: 4,
		RowsAround:    5,
		CreatedAt:     time.Now().UTC(),
	}
}

func testRun(status store.RunStatus, qty int) *store.ProductionRun {
	itemID := uuid.New()
	return &store.ProductionRun{
		ID:        uuid.New(),
		OrderID:   uuid.New(),
		DielineID: uuid.New(),
		RunNumber: 1,
		Status:    status,
		SlotAssignments: []store.SlotAssignment{
			{Slot: 0, ItemID: itemID, Quantity: qty},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func newTestHandlers(m *mockStore) (*Handlers, *mockRunner) {
	runner := &mockRunner{}
	h := New(m, imposer.DefaultPolicy(), func(tracker *imposer.Tracker) BatchRunner {
		runner.tracker = tracker
		return runner
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h, runner
}

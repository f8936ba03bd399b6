package postgres

import (
	"context"

	"github.com/google/uuid"

	"labelplane/internal/store"
)

// GetDielineByID returns a dieline by its ID.
func (s *Store) GetDielineByID(ctx context.Context, id uuid.UUID) (*store.Dieline, error) {
	query := `
		SELECT id, name, roll_width_mm, label_width_mm, label_height_mm,
		       columns_across, rows_around, gap_x_mm, gap_y_mm, bleed_mm,
		       corner_radius, created_at
		FROM dielines WHERE id = $1
	`

	var d store.Dieline
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.Name, &d.RollWidthMM, &d.LabelWidthMM, &d.LabelHeightMM,
		&d.ColumnsAcross, &d.RowsAround, &d.GapXMM, &d.GapYMM, &d.BleedMM,
		&d.CornerRadius, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &d, nil
}

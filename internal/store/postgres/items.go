package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"labelplane/internal/store"
)

const itemColumns = "id, order_id, name, quantity_ordered, width_mm, height_mm, artwork_url, created_at"

// ListItemsByOrder returns all label items belonging to an order.
func (s *Store) ListItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]store.LabelItem, error) {
	query := fmt.Sprintf("SELECT %s FROM label_items WHERE order_id = $1 ORDER BY created_at ASC", itemColumns)

	rows, err := s.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var items []store.LabelItem
	for rows.Next() {
		var it store.LabelItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Name, &it.QuantityOrdered,
			&it.WidthMM, &it.HeightMM, &it.ArtworkURL, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetItemByID returns a single label item.
func (s *Store) GetItemByID(ctx context.Context, id uuid.UUID) (*store.LabelItem, error) {
	query := fmt.Sprintf("SELECT %s FROM label_items WHERE id = $1", itemColumns)

	var it store.LabelItem
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&it.ID, &it.OrderID, &it.Name, &it.QuantityOrdered,
		&it.WidthMM, &it.HeightMM, &it.ArtworkURL, &it.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &it, nil
}

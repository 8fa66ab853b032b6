package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-scheduling-engine/internal/models"
)

// SlotDefinitionRepository reads the bell schedule catalog.
type SlotDefinitionRepository struct {
	db *sqlx.DB
}

// NewSlotDefinitionRepository constructs the repository.
func NewSlotDefinitionRepository(db *sqlx.DB) *SlotDefinitionRepository {
	return &SlotDefinitionRepository{db: db}
}

// List returns every catalog row in bell order.
func (r *SlotDefinitionRepository) List(ctx context.Context) ([]models.SlotDefinition, error) {
	const query = `SELECT id, sequence, slot_number, start_time, end_time, kind FROM slot_definitions ORDER BY sequence ASC`
	var slots []models.SlotDefinition
	if err := r.db.SelectContext(ctx, &slots, query); err != nil {
		return nil, fmt.Errorf("list slot definitions: %w", err)
	}
	return slots, nil
}

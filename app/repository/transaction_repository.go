package repository

import (
	"context"
	"time"

	"github.com/tradorr/tradorr-api/app/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository instance
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *transactionRepository) CreateIfNotExists(ctx context.Context, tx *models.Transaction) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(tx)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error; err != nil {
		return nil, translateError(err)
	}
	return &tx, nil
}

// Transition issues a conditional update so concurrent deliveries cannot move a terminal row.
func (r *transactionRepository) Transition(ctx context.Context, id, status string, details datatypes.JSON, at time.Time) (*models.Transaction, error) {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": at,
	}
	if len(details) > 0 {
		updates["payment_details"] = details
	}
	if status == models.TRANSACTION_COMPLETED {
		updates["completed_at"] = at
	}

	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status NOT IN ?", id, []string{models.TRANSACTION_COMPLETED, models.TRANSACTION_FAILED}).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// ListByUser returns the newest transactions of a user first
func (r *transactionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&txs).Error
	return txs, err
}

func (r *transactionRepository) LatestByUser(ctx context.Context, userID string) (*models.Transaction, error) {
	txs, err := r.ListByUser(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, ErrNotFound
	}
	return &txs[0], nil
}

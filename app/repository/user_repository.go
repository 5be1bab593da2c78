package repository

import (
	"context"
	"errors"

	"github.com/tradorr/tradorr-api/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

// UpsertSubscription inserts the user row or updates its subscription columns
func (r *userRepository) UpsertSubscription(ctx context.Context, id string, update models.SubscriptionUpdate) error {
	user := models.User{ID: id}
	update.Apply(&user)

	columns := []string{"subscription_status", "updated_at"}
	if update.Status != models.SUBSCRIPTION_INACTIVE {
		columns = append(columns, "subscription_plan", "subscription_end_date", "trial_end_date")
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&user).Error
}

// SetSubscriptionStatus updates the status column of an existing user
func (r *userRepository) SetSubscriptionStatus(ctx context.Context, id, status string) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("subscription_status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// a no-op update on an existing row also reports zero rows
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// IncrementAnalyzerUsage adds delta to the analyzer usage counter
func (r *userRepository) IncrementAnalyzerUsage(ctx context.Context, id string, delta int64) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		UpdateColumn("analyzer_usage_count", gorm.Expr("analyzer_usage_count + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List retrieves a paginated list of users
func (r *userRepository) List(ctx context.Context, offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

func translateError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

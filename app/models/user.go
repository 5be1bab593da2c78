package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

const (
	SUBSCRIPTION_INACTIVE = "inactive"
	SUBSCRIPTION_TRIAL    = "trial"
	SUBSCRIPTION_ACTIVE   = "active"
)

// User is the subscription view of an account. ID is the auth provider uid.
type User struct {
	ID                  string     `gorm:"primaryKey;type:varchar(128)" json:"id" firestore:"-" validate:"required,max=128"`
	Email               string     `gorm:"type:varchar(200);index" json:"email" firestore:"email" validate:"omitempty,email,max=200"`
	SubscriptionStatus  string     `gorm:"type:varchar(20);not null;default:'inactive';index" json:"subscriptionStatus" firestore:"subscriptionStatus" validate:"oneof=inactive trial active"`
	SubscriptionPlan    string     `gorm:"type:varchar(100);default:''" json:"subscriptionPlan" firestore:"subscriptionPlan"`
	SubscriptionEndDate *time.Time `gorm:"type:timestamp;default:null" json:"subscriptionEndDate" firestore:"subscriptionEndDate"`
	TrialEndDate        *time.Time `gorm:"type:timestamp;default:null" json:"trialEndDate" firestore:"trialEndDate"`
	IsAdmin             bool       `gorm:"default:false" json:"isAdmin" firestore:"isAdmin"`
	AnalyzerUsageCount  int64      `gorm:"not null;default:0" json:"analyzerUsageCount" firestore:"analyzerUsageCount"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"createdAt" firestore:"createdAt"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updatedAt" firestore:"updatedAt"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// IsSubscriptionActive reports whether the user currently holds a paid or trial subscription.
// An active subscription without an end date never expires.
func (u *User) IsSubscriptionActive(now time.Time) bool {
	switch u.SubscriptionStatus {
	case SUBSCRIPTION_ACTIVE:
		return u.SubscriptionEndDate == nil || u.SubscriptionEndDate.After(now)
	case SUBSCRIPTION_TRIAL:
		return u.TrialEndDate != nil && u.TrialEndDate.After(now)
	}
	return false
}

// SubscriptionUpdate is the set of subscription fields written by reconciliation.
type SubscriptionUpdate struct {
	Status       string
	Plan         string
	EndDate      *time.Time
	TrialEndDate *time.Time
}

// Apply copies the update onto the user.
func (s SubscriptionUpdate) Apply(u *User) {
	u.SubscriptionStatus = s.Status
	if s.Status == SUBSCRIPTION_INACTIVE {
		return
	}
	u.SubscriptionPlan = s.Plan
	u.SubscriptionEndDate = s.EndDate
	u.TrialEndDate = s.TrialEndDate
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

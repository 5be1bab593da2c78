package repository

import (
	"sync"
)

const (
	DriverFirestore = "firestore"
	DriverMySQL     = "mysql"
)

// Factory hands out the repositories of the configured store driver
type Factory struct {
	repos *Repositories
}

// NewFactory creates a new repository factory
func NewFactory(repos *Repositories) *Factory {
	return &Factory{
		repos: repos,
	}
}

// GetRepositories returns all repositories
func (f *Factory) GetRepositories() *Repositories {
	return f.repos
}

// GetUserRepository returns the user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.repos.User
}

// GetTransactionRepository returns the transaction repository instance
func (f *Factory) GetTransactionRepository() TransactionRepository {
	return f.repos.Transaction
}

// GetWebhookEventRepository returns the webhook event repository instance
func (f *Factory) GetWebhookEventRepository() WebhookEventRepository {
	return f.repos.WebhookEvent
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(repos *Repositories) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(repos)
	})
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}

// GetGlobalRepositories returns the global repositories instance
func GetGlobalRepositories() *Repositories {
	return GetGlobalFactory().GetRepositories()
}

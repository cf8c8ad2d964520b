package store

import "prdgen/pkg/domain"

// Store defines persistence operations for usage accounts and generation
// records. Calls are independent: the core never assumes transactionality
// across them.
type Store interface {
	// usage accounts
	GetUsageAccount(userID string) (domain.UsageAccount, bool, error)
	CreateUsageAccount(acct domain.UsageAccount) error
	UpdateUsageAccount(acct domain.UsageAccount) error

	// generation records
	CreateGenerationRecord(rec domain.GenerationRecord) error
	GetGenerationRecord(id string) (domain.GenerationRecord, bool, error)
	ListGenerationRecordsByUser(userID string, limit int) ([]domain.GenerationRecord, error)
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"prdgen/pkg/domain"
)

const migrateLockID int64 = 77317731

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UsageAccountModel{}, &GenerationRecordModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// GetUsageAccount returns the account for a user, if one exists.
func (s *GormStore) GetUsageAccount(userID string) (domain.UsageAccount, bool, error) {
	var model UsageAccountModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.UsageAccount{}, false, nil
		}
		return domain.UsageAccount{}, false, err
	}
	return accountFromModel(model), true, nil
}

// CreateUsageAccount inserts a new account row.
func (s *GormStore) CreateUsageAccount(acct domain.UsageAccount) error {
	model := accountToModel(acct)
	return s.db.Create(&model).Error
}

// UpdateUsageAccount writes counter, plan, and reset date for an existing account.
func (s *GormStore) UpdateUsageAccount(acct domain.UsageAccount) error {
	return s.db.Model(&UsageAccountModel{}).
		Where("user_id = ?", acct.UserID).
		Updates(map[string]any{
			"plan":                   string(acct.Plan),
			"generations_this_month": acct.GenerationsThisMonth,
			"month_reset_date":       acct.MonthResetDate.UTC(),
			"updated_at":             time.Now().UTC(),
		}).Error
}

// CreateGenerationRecord stores one completed generation.
func (s *GormStore) CreateGenerationRecord(rec domain.GenerationRecord) error {
	model, err := recordToModel(rec)
	if err != nil {
		return err
	}
	return s.db.Create(&model).Error
}

// GetGenerationRecord retrieves one record by ID.
func (s *GormStore) GetGenerationRecord(id string) (domain.GenerationRecord, bool, error) {
	var model GenerationRecordModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.GenerationRecord{}, false, nil
		}
		return domain.GenerationRecord{}, false, err
	}
	rec, err := recordFromModel(model)
	if err != nil {
		return domain.GenerationRecord{}, false, err
	}
	return rec, true, nil
}

// ListGenerationRecordsByUser returns a user's newest records first.
func (s *GormStore) ListGenerationRecordsByUser(userID string, limit int) ([]domain.GenerationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []GenerationRecordModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	records := make([]domain.GenerationRecord, 0, len(models))
	for _, model := range models {
		rec, err := recordFromModel(model)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func accountToModel(acct domain.UsageAccount) UsageAccountModel {
	return UsageAccountModel{
		UserID:               acct.UserID,
		Email:                acct.Email,
		Plan:                 string(acct.Plan),
		GenerationsThisMonth: acct.GenerationsThisMonth,
		MonthResetDate:       acct.MonthResetDate,
		CreatedAt:            acct.CreatedAt,
		UpdatedAt:            acct.UpdatedAt,
	}
}

func accountFromModel(m UsageAccountModel) domain.UsageAccount {
	plan := domain.Plan(m.Plan)
	if plan == "" {
		plan = domain.PlanFree
	}
	return domain.UsageAccount{
		UserID:               m.UserID,
		Email:                m.Email,
		Plan:                 plan,
		GenerationsThisMonth: m.GenerationsThisMonth,
		MonthResetDate:       m.MonthResetDate,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func recordToModel(rec domain.GenerationRecord) (GenerationRecordModel, error) {
	input, err := json.Marshal(rec.Input)
	if err != nil {
		return GenerationRecordModel{}, fmt.Errorf("marshal input: %w", err)
	}
	doc, err := json.Marshal(rec.Document)
	if err != nil {
		return GenerationRecordModel{}, fmt.Errorf("marshal document: %w", err)
	}
	return GenerationRecordModel{
		ID:           rec.ID,
		UserID:       rec.UserID,
		Input:        input,
		Document:     doc,
		Status:       string(rec.Status),
		ErrorMessage: rec.ErrorMessage,
		CreatedAt:    rec.CreatedAt,
		CompletedAt:  rec.CompletedAt,
	}, nil
}

func recordFromModel(m GenerationRecordModel) (domain.GenerationRecord, error) {
	rec := domain.GenerationRecord{
		ID:           m.ID,
		UserID:       m.UserID,
		Status:       domain.GenerationStatus(m.Status),
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
		CompletedAt:  m.CompletedAt,
	}
	if len(m.Input) > 0 {
		if err := json.Unmarshal(m.Input, &rec.Input); err != nil {
			return domain.GenerationRecord{}, fmt.Errorf("unmarshal input: %w", err)
		}
	}
	if len(m.Document) > 0 {
		if err := json.Unmarshal(m.Document, &rec.Document); err != nil {
			return domain.GenerationRecord{}, fmt.Errorf("unmarshal document: %w", err)
		}
	}
	return rec, nil
}

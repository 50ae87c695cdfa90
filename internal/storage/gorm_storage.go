package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type GormStorage struct {
	db *gorm.DB
}

func NewGormStorage(driver, dsn string) (*GormStorage, error) {
	var gormDialector gorm.Dialector
	if driver == "postgres" {
		gormDialector = postgres.Open(dsn)
	} else if driver == "sqlite" {
		gormDialector = sqlite.Open(dsn)
	} else {
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := gorm.Open(gormDialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	return &GormStorage{db: db}, nil
}

func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.AutoMigrate(
		&Unit{},
		&Tenant{},
		&RateEntry{},
		&UsageSample{},
		&Payment{},
		&Bill{},
		&User{},
		&EmailConfig{},
		&Setting{},
		&ScheduledJob{},
	)
}

// Units & tenants

func (s *GormStorage) ListUnits(ctx context.Context) ([]UnitWithTenant, error) {
	var rows []UnitWithTenant
	err := s.db.WithContext(ctx).
		Table("units u").
		Select("u.id, u.unit_number, u.property, u.address, t.id as tenant_id, t.name as tenant_name, t.current_balance").
		Joins("LEFT JOIN tenants t ON u.id = t.unit_id").
		Order("u.property, u.unit_number").
		Scan(&rows).Error
	return rows, err
}

func (s *GormStorage) GetUnitByNumber(ctx context.Context, unitNumber string) (*Unit, error) {
	var u Unit
	result := s.db.WithContext(ctx).First(&u, "unit_number = ?", unitNumber)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &u, nil
}

func (s *GormStorage) UpsertUnit(ctx context.Context, u Unit) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "unit_number"}},
		UpdateAll: true,
	}).Create(&u).Error
}

func (s *GormStorage) AssignTenant(ctx context.Context, unitID uint, name string) (*Tenant, error) {
	var created *Tenant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Tenant{}, "unit_id = ?", unitID).Error; err != nil {
			return err
		}
		if name == "" {
			return nil
		}
		t := Tenant{UnitID: unitID, Name: name}
		if err := tx.Create(&t).Error; err != nil {
			return err
		}
		created = &t
		return nil
	})
	return created, err
}

func (s *GormStorage) GetTenant(ctx context.Context, id uint) (*Tenant, error) {
	var t Tenant
	result := s.db.WithContext(ctx).First(&t, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &t, nil
}

func (s *GormStorage) SetBalance(ctx context.Context, tenantID uint, balance float64) error {
	return s.db.WithContext(ctx).Model(&Tenant{}).Where("id = ?", tenantID).
		Update("current_balance", balance).Error
}

func (s *GormStorage) AddToBalance(ctx context.Context, tenantID uint, delta float64) error {
	result := s.db.WithContext(ctx).Model(&Tenant{}).Where("id = ?", tenantID).
		Update("current_balance", gorm.Expr("current_balance + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("tenant %d not found", tenantID)
	}
	return nil
}

// Rate table

func (s *GormStorage) ListRates(ctx context.Context) ([]RateEntry, error) {
	var rates []RateEntry
	result := s.db.WithContext(ctx).Order("id").Find(&rates)
	return rates, result.Error
}

func (s *GormStorage) UpdateRate(ctx context.Context, id uint, rate float64) error {
	result := s.db.WithContext(ctx).Model(&RateEntry{}).Where("id = ?", id).
		Update("rate", rate)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("rate entry %d not found", id)
	}
	return nil
}

func (s *GormStorage) UpsertRate(ctx context.Context, r RateEntry) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "category"}},
		DoNothing: true,
	}).Create(&r).Error
}

// Usage samples

func (s *GormStorage) UpsertUsage(ctx context.Context, unitID uint, date string, gallons float64) error {
	sample := UsageSample{
		UnitID:    unitID,
		Date:      date,
		Gallons:   gallons,
		CreatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "unit_id"}, {Name: "date"}},
		UpdateAll: true,
	}).Create(&sample).Error
}

func (s *GormStorage) QueryUsage(ctx context.Context, startDate, endDate string) ([]UsageRow, error) {
	var rows []UsageRow
	err := s.db.WithContext(ctx).
		Table("usage_samples wu").
		Select("wu.unit_id, u.unit_number, u.property, u.address, COALESCE(t.name, '') as tenant_name, wu.date, wu.gallons").
		Joins("JOIN units u ON u.id = wu.unit_id").
		Joins("LEFT JOIN tenants t ON t.unit_id = u.id").
		Where("wu.date BETWEEN ? AND ?", startDate, endDate).
		Order("u.property, u.unit_number, wu.date").
		Scan(&rows).Error
	return rows, err
}

func (s *GormStorage) PurgeUsage(ctx context.Context, cutoffDate string) (int64, error) {
	result := s.db.WithContext(ctx).Delete(&UsageSample{}, "date < ?", cutoffDate)
	return result.RowsAffected, result.Error
}

// Payments & bills

func (s *GormStorage) CreatePayment(ctx context.Context, p Payment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(&p).Error
}

func (s *GormStorage) ListPayments(ctx context.Context, tenantID uint) ([]Payment, error) {
	var payments []Payment
	result := s.db.WithContext(ctx).Order("created_at desc").
		Find(&payments, "tenant_id = ?", tenantID)
	return payments, result.Error
}

func (s *GormStorage) CreateBill(ctx context.Context, b Bill) error {
	return s.db.WithContext(ctx).Create(&b).Error
}

// Operator accounts

func (s *GormStorage) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	result := s.db.WithContext(ctx).First(&user, "username = ?", username)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &user, nil
}

func (s *GormStorage) CreateUser(ctx context.Context, u User) error {
	return s.db.WithContext(ctx).Create(&u).Error
}

// Settings

func (s *GormStorage) GetSetting(ctx context.Context, key string) (string, error) {
	var setting Setting
	result := s.db.WithContext(ctx).First(&setting, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", result.Error
	}
	return setting.Value, nil
}

func (s *GormStorage) SetSetting(ctx context.Context, key, value string) error {
	setting := Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&setting).Error
}

// Scheduled jobs & locking

func (s *GormStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	status := 0
	if success {
		status = 1
	}
	job := ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&job).Error
}

func (s *GormStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	if s.db.Dialector.Name() == "postgres" {
		var ok bool
		err := s.db.WithContext(ctx).Raw("SELECT pg_try_advisory_lock(?)", key).Scan(&ok).Error
		return ok, err
	}
	// SQLite has no advisory locks; single-instance deployments only.
	return true, nil
}

func (s *GormStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	if s.db.Dialector.Name() == "postgres" {
		var ok bool
		err := s.db.WithContext(ctx).Raw("SELECT pg_advisory_unlock(?)", key).Scan(&ok).Error
		return ok, err
	}
	return true, nil
}

// Notification config

func (s *GormStorage) GetEmailConfig(ctx context.Context) (*EmailConfig, error) {
	var config EmailConfig
	result := s.db.WithContext(ctx).First(&config)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &config, nil
}

func (s *GormStorage) SaveEmailConfig(ctx context.Context, config EmailConfig) error {
	if config.ID == "" {
		config.ID = "default"
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&config).Error
}

// Close & Ping

func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

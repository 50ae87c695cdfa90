package storage

import (
	"context"
	"time"
)

// Storage abstracts persistence for units, tenants, rates, usage samples,
// payments and committed bills.
type Storage interface {
	// Units & tenants
	ListUnits(ctx context.Context) ([]UnitWithTenant, error)
	GetUnitByNumber(ctx context.Context, unitNumber string) (*Unit, error)
	UpsertUnit(ctx context.Context, u Unit) error
	// AssignTenant replaces any existing tenant for the unit. An empty name
	// clears the unit (vacancy) without creating a new tenant.
	AssignTenant(ctx context.Context, unitID uint, name string) (*Tenant, error)
	GetTenant(ctx context.Context, id uint) (*Tenant, error)
	SetBalance(ctx context.Context, tenantID uint, balance float64) error
	AddToBalance(ctx context.Context, tenantID uint, delta float64) error

	// Rate table
	ListRates(ctx context.Context) ([]RateEntry, error)
	UpdateRate(ctx context.Context, id uint, rate float64) error
	UpsertRate(ctx context.Context, r RateEntry) error

	// Usage samples (rolling window)
	UpsertUsage(ctx context.Context, unitID uint, date string, gallons float64) error
	QueryUsage(ctx context.Context, startDate, endDate string) ([]UsageRow, error)
	PurgeUsage(ctx context.Context, cutoffDate string) (int64, error)

	// Payments & bills
	CreatePayment(ctx context.Context, p Payment) error
	ListPayments(ctx context.Context, tenantID uint) ([]Payment, error)
	CreateBill(ctx context.Context, b Bill) error

	// Operator accounts
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, u User) error

	// Settings & job bookkeeping
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error

	// Advisory locks serialize background jobs across replicas. Backends
	// without native support report the lock as always acquired.
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)

	// Notification config
	GetEmailConfig(ctx context.Context) (*EmailConfig, error)
	SaveEmailConfig(ctx context.Context, cfg EmailConfig) error

	// Close releases any resources (no-op for in-memory).
	Close() error
	Ping(ctx context.Context) error
}

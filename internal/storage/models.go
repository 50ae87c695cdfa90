package storage

import "time"

// Unit identifies a rentable address. Units are reference data: seeded at
// provisioning time and never deleted in normal operation.
type Unit struct {
	ID         uint   `json:"id" gorm:"primaryKey;column:id"`
	UnitNumber string `json:"unit_number" gorm:"unique;column:unit_number"`
	Property   string `json:"property" gorm:"column:property"`
	Address    string `json:"address" gorm:"column:address"`
}

// Tenant occupies at most one unit. Replace-on-write: assigning a new name
// to a unit deletes any prior tenant row for that unit.
type Tenant struct {
	ID             uint    `json:"id" gorm:"primaryKey;column:id"`
	UnitID         uint    `json:"unit_id" gorm:"column:unit_id"`
	Name           string  `json:"name" gorm:"column:name"`
	CurrentBalance float64 `json:"current_balance" gorm:"column:current_balance;default:0"`
}

// Rate entry kinds.
const (
	RateKindPerCCF = "per_ccf"
	RateKindPerDay = "per_day"
)

// RateEntry is a named charge category, either per-CCF or per-day.
type RateEntry struct {
	ID       uint    `json:"id" gorm:"primaryKey;column:id"`
	Category string  `json:"category" gorm:"unique;column:category"`
	Rate     float64 `json:"rate" gorm:"column:rate"`
	Kind     string  `json:"type" gorm:"column:type"`
}

// UsageSample is one (unit, date) gallons reading. At most one row per
// (unit, date); re-ingestion overwrites.
type UsageSample struct {
	ID        uint      `json:"-" gorm:"primaryKey;column:id"`
	UnitID    uint      `json:"unit_id" gorm:"column:unit_id;uniqueIndex:idx_usage_unit_date"`
	Date      string    `json:"date" gorm:"column:date;uniqueIndex:idx_usage_unit_date"`
	Gallons   float64   `json:"gallons" gorm:"column:gallons"`
	CreatedAt time.Time `json:"-" gorm:"column:created_at"`
}

// UsageRow is a usage sample joined with its unit and (optional) tenant,
// as returned by QueryUsage.
type UsageRow struct {
	UnitID     uint    `json:"unit_id"`
	UnitNumber string  `json:"unit_number"`
	Property   string  `json:"property"`
	Address    string  `json:"address"`
	TenantName string  `json:"tenant_name"`
	Date       string  `json:"date"`
	Gallons    float64 `json:"gallons"`
}

// Payment is an append-only record of money received from a tenant.
type Payment struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	TenantID  uint      `json:"tenant_id" gorm:"column:tenant_id"`
	Amount    float64   `json:"amount" gorm:"column:amount"`
	Date      string    `json:"date" gorm:"column:date"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

// Bill is a committed bill record. Bills are only written when the operator
// commits a computed bill to the ledger.
type Bill struct {
	ID          uint    `json:"id" gorm:"primaryKey;column:id"`
	TenantID    uint    `json:"tenant_id" gorm:"column:tenant_id"`
	PeriodStart string  `json:"period_start" gorm:"column:period_start"`
	PeriodEnd   string  `json:"period_end" gorm:"column:period_end"`
	CCFUsage    float64 `json:"ccf_usage" gorm:"column:ccf_usage"`
	TotalAmount float64 `json:"total_amount" gorm:"column:total_amount"`
	CreatedDate string  `json:"created_date" gorm:"column:created_date"`
}

// UnitWithTenant is a unit joined with its tenant, if any. TenantID is nil
// for vacant units.
type UnitWithTenant struct {
	ID             uint     `json:"id"`
	UnitNumber     string   `json:"unit_number"`
	Property       string   `json:"property"`
	Address        string   `json:"address"`
	TenantID       *uint    `json:"tenant_id"`
	TenantName     *string  `json:"name"`
	CurrentBalance *float64 `json:"current_balance"`
}

// User is an operator account. The default deployment seeds exactly one.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;column:id"`
	Username     string    `json:"username" gorm:"unique;column:username"`
	PasswordHash string    `json:"-" gorm:"column:password_hash"`
	Role         string    `json:"role" gorm:"column:role"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// EmailConfig holds configuration for email notifications.
type EmailConfig struct {
	ID          string    `json:"id" gorm:"primaryKey;column:id"`
	Provider    string    `json:"provider" gorm:"column:provider"` // "smtp", "sendgrid", "gmail"
	Host        string    `json:"host,omitempty" gorm:"column:host"`
	Port        int       `json:"port,omitempty" gorm:"column:port"`
	Username    string    `json:"username,omitempty" gorm:"column:username"`
	Password    string    `json:"password,omitempty" gorm:"column:password"`
	FromAddress string    `json:"from_address" gorm:"column:from_address"`
	FromName    string    `json:"from_name" gorm:"column:from_name"`
	APIKey      string    `json:"api_key,omitempty" gorm:"column:api_key"`
	Encryption  string    `json:"encryption,omitempty" gorm:"column:encryption"` // "none", "ssl", "tls"
	Recipient   string    `json:"recipient" gorm:"column:recipient"`
	Enabled     bool      `json:"enabled" gorm:"column:enabled"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// Setting is a simple key/value configuration row.
type Setting struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// ScheduledJob records the last outcome of a background job.
type ScheduledJob struct {
	Name           string    `gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `gorm:"column:last_run_at"`
	LastDurationMs int64     `gorm:"column:last_duration_ms"`
	LastSuccess    int       `gorm:"column:last_success"`
	LastError      string    `gorm:"column:last_error"`
}

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation, useful for tests and
// simple single-process deployments.
type MemoryStorage struct {
	mu         sync.RWMutex
	nextUnitID uint
	nextTenant uint
	nextRateID uint
	nextBillID uint

	units    map[uint]Unit
	tenants  map[uint]Tenant // keyed by tenant id; at most one per unit
	rates    map[uint]RateEntry
	usage    map[uint]map[string]UsageSample // unit id -> date -> sample
	payments []Payment
	bills    []Bill
	users    map[string]User
	settings map[string]string
	jobs     map[string]ScheduledJob
	email    *EmailConfig
}

// NewMemory returns an empty MemoryStorage.
func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		nextUnitID: 1,
		nextTenant: 1,
		nextRateID: 1,
		nextBillID: 1,
		units:      make(map[uint]Unit),
		tenants:    make(map[uint]Tenant),
		rates:      make(map[uint]RateEntry),
		usage:      make(map[uint]map[string]UsageSample),
		users:      make(map[string]User),
		settings:   make(map[string]string),
		jobs:       make(map[string]ScheduledJob),
	}
}

func (m *MemoryStorage) Close() error                   { return nil }
func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

// Units & tenants

func (m *MemoryStorage) ListUnits(ctx context.Context) ([]UnitWithTenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]UnitWithTenant, 0, len(m.units))
	for _, u := range m.units {
		row := UnitWithTenant{
			ID:         u.ID,
			UnitNumber: u.UnitNumber,
			Property:   u.Property,
			Address:    u.Address,
		}
		for _, t := range m.tenants {
			if t.UnitID == u.ID {
				t := t
				row.TenantID = &t.ID
				row.TenantName = &t.Name
				row.CurrentBalance = &t.CurrentBalance
				break
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Property != out[j].Property {
			return out[i].Property < out[j].Property
		}
		return out[i].UnitNumber < out[j].UnitNumber
	})
	return out, nil
}

func (m *MemoryStorage) GetUnitByNumber(ctx context.Context, unitNumber string) (*Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.units {
		if u.UnitNumber == unitNumber {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) UpsertUnit(ctx context.Context, u Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.units {
		if existing.UnitNumber == u.UnitNumber {
			u.ID = id
			m.units[id] = u
			return nil
		}
	}
	if u.ID == 0 {
		u.ID = m.nextUnitID
	}
	if u.ID >= m.nextUnitID {
		m.nextUnitID = u.ID + 1
	}
	m.units[u.ID] = u
	return nil
}

func (m *MemoryStorage) AssignTenant(ctx context.Context, unitID uint, name string) (*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tenants {
		if t.UnitID == unitID {
			delete(m.tenants, id)
		}
	}
	if name == "" {
		return nil, nil
	}
	t := Tenant{ID: m.nextTenant, UnitID: unitID, Name: name}
	m.nextTenant++
	m.tenants[t.ID] = t
	return &t, nil
}

func (m *MemoryStorage) GetTenant(ctx context.Context, id uint) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *MemoryStorage) SetBalance(ctx context.Context, tenantID uint, balance float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return fmt.Errorf("tenant %d not found", tenantID)
	}
	t.CurrentBalance = balance
	m.tenants[tenantID] = t
	return nil
}

func (m *MemoryStorage) AddToBalance(ctx context.Context, tenantID uint, delta float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return fmt.Errorf("tenant %d not found", tenantID)
	}
	t.CurrentBalance += delta
	m.tenants[tenantID] = t
	return nil
}

// Rate table

func (m *MemoryStorage) ListRates(ctx context.Context) ([]RateEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RateEntry, 0, len(m.rates))
	for _, r := range m.rates {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStorage) UpdateRate(ctx context.Context, id uint, rate float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rates[id]
	if !ok {
		return fmt.Errorf("rate entry %d not found", id)
	}
	r.Rate = rate
	m.rates[id] = r
	return nil
}

func (m *MemoryStorage) UpsertRate(ctx context.Context, r RateEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rates {
		if existing.Category == r.Category {
			return nil
		}
	}
	if r.ID == 0 {
		r.ID = m.nextRateID
	}
	if r.ID >= m.nextRateID {
		m.nextRateID = r.ID + 1
	}
	m.rates[r.ID] = r
	return nil
}

// Usage samples

func (m *MemoryStorage) UpsertUsage(ctx context.Context, unitID uint, date string, gallons float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.usage[unitID]; !ok {
		m.usage[unitID] = make(map[string]UsageSample)
	}
	m.usage[unitID][date] = UsageSample{
		UnitID:    unitID,
		Date:      date,
		Gallons:   gallons,
		CreatedAt: time.Now(),
	}
	return nil
}

func (m *MemoryStorage) QueryUsage(ctx context.Context, startDate, endDate string) ([]UsageRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []UsageRow
	for unitID, byDate := range m.usage {
		u, ok := m.units[unitID]
		if !ok {
			continue
		}
		tenantName := ""
		for _, t := range m.tenants {
			if t.UnitID == unitID {
				tenantName = t.Name
				break
			}
		}
		for date, sample := range byDate {
			if date < startDate || date > endDate {
				continue
			}
			out = append(out, UsageRow{
				UnitID:     unitID,
				UnitNumber: u.UnitNumber,
				Property:   u.Property,
				Address:    u.Address,
				TenantName: tenantName,
				Date:       date,
				Gallons:    sample.Gallons,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Property != out[j].Property {
			return out[i].Property < out[j].Property
		}
		if out[i].UnitNumber != out[j].UnitNumber {
			return out[i].UnitNumber < out[j].UnitNumber
		}
		return out[i].Date < out[j].Date
	})
	return out, nil
}

func (m *MemoryStorage) PurgeUsage(ctx context.Context, cutoffDate string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for unitID, byDate := range m.usage {
		for date := range byDate {
			if date < cutoffDate {
				delete(byDate, date)
				removed++
			}
		}
		if len(byDate) == 0 {
			delete(m.usage, unitID)
		}
	}
	return removed, nil
}

// CountUsage reports the number of stored samples; test helper.
func (m *MemoryStorage) CountUsage() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, byDate := range m.usage {
		n += len(byDate)
	}
	return n
}

// Payments & bills

func (m *MemoryStorage) CreatePayment(ctx context.Context, p Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.payments = append(m.payments, p)
	return nil
}

func (m *MemoryStorage) ListPayments(ctx context.Context, tenantID uint) ([]Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Payment
	for _, p := range m.payments {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStorage) CreateBill(ctx context.Context, b Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = m.nextBillID
	m.nextBillID++
	m.bills = append(m.bills, b)
	return nil
}

// Operator accounts

func (m *MemoryStorage) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) CreateUser(ctx context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

// Settings & scheduled jobs

func (m *MemoryStorage) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings[key], nil
}

func (m *MemoryStorage) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *MemoryStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := 0
	if success {
		status = 1
	}
	m.jobs[name] = ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return nil
}

func (m *MemoryStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return true, nil
}

func (m *MemoryStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return true, nil
}

// Notification config

func (m *MemoryStorage) GetEmailConfig(ctx context.Context) (*EmailConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.email == nil {
		return nil, nil
	}
	cfg := *m.email
	return &cfg, nil
}

func (m *MemoryStorage) SaveEmailConfig(ctx context.Context, cfg EmailConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.ID == "" {
		cfg.ID = "default"
	}
	m.email = &cfg
	return nil
}

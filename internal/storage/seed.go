package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultUnits is the fixed roster of rentable addresses.
func DefaultUnits() []Unit {
	return []Unit{
		{UnitNumber: "484", Property: "Champion", Address: "484 S Champion Avenue"},
		{UnitNumber: "486", Property: "Champion", Address: "486 S Champion Avenue"},
		{UnitNumber: "483", Property: "Barnett", Address: "483 Barnett Road"},
		{UnitNumber: "485", Property: "Barnett", Address: "485 Barnett Road"},
		{UnitNumber: "487", Property: "Barnett", Address: "487 Barnett Road"},
		{UnitNumber: "489", Property: "Barnett", Address: "489 Barnett Road"},
		{UnitNumber: "532A", Property: "532 Barnett", Address: "532 Barnett Road, Unit A"},
		{UnitNumber: "532B", Property: "532 Barnett", Address: "532 Barnett Road, Unit B"},
		{UnitNumber: "532C", Property: "532 Barnett", Address: "532 Barnett Road, Unit C"},
		{UnitNumber: "532D", Property: "532 Barnett", Address: "532 Barnett Road, Unit D"},
		{UnitNumber: "CushingA", Property: "Cushing", Address: "3631 Cushing Drive, Unit A"},
		{UnitNumber: "CushingB", Property: "Cushing", Address: "3631 Cushing Drive, Unit B"},
		{UnitNumber: "CushingC", Property: "Cushing", Address: "3631 Cushing Drive, Unit C"},
		{UnitNumber: "CushingD", Property: "Cushing", Address: "3631 Cushing Drive, Unit D"},
	}
}

// DefaultRates is the six-category charge table.
func DefaultRates() []RateEntry {
	return []RateEntry{
		{Category: "Water Rate", Rate: 3.52, Kind: RateKindPerCCF},
		{Category: "Sewer Rate", Rate: 5.35, Kind: RateKindPerCCF},
		{Category: "Water Base", Rate: 0.080084, Kind: RateKindPerDay},
		{Category: "Stormwater", Rate: 0.126489, Kind: RateKindPerDay},
		{Category: "Sewer Base", Rate: 0.041320, Kind: RateKindPerDay},
		{Category: "Clean River Fund", Rate: 0.103567, Kind: RateKindPerDay},
	}
}

// DefaultOperator is the single seeded operator account. The hash is for
// the deployment's configured password; it is replaced on first boot when
// WATERBILL_OPERATOR_HASH is set.
const (
	DefaultOperatorUsername = "GDP"
	DefaultOperatorRole     = "admin"
)

// Seed inserts default units, rates and the operator account if absent.
// Existing rows are never overwritten, so Seed is safe to run on every boot.
func Seed(ctx context.Context, st Storage) error {
	for _, u := range DefaultUnits() {
		existing, err := st.GetUnitByNumber(ctx, u.UnitNumber)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := st.UpsertUnit(ctx, u); err != nil {
			return err
		}
	}
	for _, r := range DefaultRates() {
		if err := st.UpsertRate(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// SeedOperator inserts the operator account with the given bcrypt hash if
// no account with that username exists.
func SeedOperator(ctx context.Context, st Storage, username, passwordHash string) error {
	existing, err := st.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return st.CreateUser(ctx, User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         DefaultOperatorRole,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	})
}

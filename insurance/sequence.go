package insurance

import (
	"context"
	"fmt"
)

// Human code prefixes. The PREFIX-NNNNN shape is a durable external contract.
const (
	PrefixUser         = "USR"
	PrefixCustomer     = "CUST"
	PrefixVehicle      = "VEH"
	PrefixPolicy       = "POL"
	PrefixPremium      = "PREM"
	PrefixRenewal      = "REN"
	PrefixNotification = "NOTIF"
	PrefixClaim        = "CLM"
)

// Counter names, one row per name in the counters table.
const (
	CounterUser         = "userID"
	CounterCustomer     = "customerID"
	CounterVehicle      = "vehicleID"
	CounterPolicy       = "policyID"
	CounterPremium      = "premiumID"
	CounterRenewal      = "renewalID"
	CounterNotification = "notificationID"
	CounterClaim        = "claimID"
)

// Code formats a human-readable code, e.g. Code("CLM", 42) == "CLM-00042".
func Code(prefix string, n int64) string {
	return fmt.Sprintf("%s-%05d", prefix, n)
}

// mintCode draws the next value of counter and formats it with prefix.
// The sequence is read from the external sequencer when one is configured,
// otherwise from the transactional store view so that a failed creation
// rolls the increment back with it.
func (d *deps) mintCode(ctx context.Context, tx Store, counter, prefix string) (string, error) {
	var src SequenceStore = tx
	if d.sequencer != nil {
		src = d.sequencer
	}
	n, err := src.NextSequence(ctx, counter)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSequenceUnavailable, counter, err)
	}
	if n <= 0 {
		return "", fmt.Errorf("%w: %s returned %d", ErrSequenceUnavailable, counter, n)
	}
	return Code(prefix, n), nil
}

// Counters lists every counter the engine mints codes from.
var Counters = []string{
	CounterUser,
	CounterCustomer,
	CounterVehicle,
	CounterPolicy,
	CounterPremium,
	CounterRenewal,
	CounterNotification,
	CounterClaim,
}

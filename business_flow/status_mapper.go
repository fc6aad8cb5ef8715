package businessflow

import (
	"strings"

	"github.com/Misty-clouds/eurobankv2/models"
)

// mapDepositStatus translates a processor payment status into the internal
// deposit status. Matching is case-insensitive because the processor's
// webhook and poll endpoints disagree on casing. Unknown vocabulary maps to
// pending so a new upstream status can never complete or fail a deposit by
// accident.
func mapDepositStatus(s string) (models.DepositStatus, string) {
	sx := strings.ToLower(strings.TrimSpace(s))
	switch sx {
	case "finished":
		return models.DepositStatusCompleted, sx
	case "partially_paid":
		return models.DepositStatusPartiallyPaid, sx
	case "confirming", "confirmed", "sending":
		return models.DepositStatusProcessing, sx
	case "failed", "refunded", "expired":
		return models.DepositStatusFailed, sx
	case "waiting":
		return models.DepositStatusPending, sx
	default:
		return models.DepositStatusPending, sx
	}
}

// mapWithdrawalStatus translates a processor payout status into the internal
// withdrawal status. Anything that is neither settled nor failed reads as
// processing: once dispatched, a payout is in flight until the processor
// says otherwise.
func mapWithdrawalStatus(s string) (models.WithdrawalStatus, string) {
	sx := strings.ToLower(strings.TrimSpace(s))
	switch sx {
	case "finished":
		return models.WithdrawalStatusCompleted, sx
	case "failed", "refunded", "expired", "rejected":
		return models.WithdrawalStatusFailed, sx
	default:
		return models.WithdrawalStatusProcessing, sx
	}
}

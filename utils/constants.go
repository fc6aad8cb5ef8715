package utils

import (
	"time"
)

// Payout and currency constants
const (
	// PayoutCurrency is the asset every payout is denominated in
	PayoutCurrency = "usdt"

	// PayoutNetwork is the settlement network used for payouts
	PayoutNetwork = "trx"

	// USDCurrency is the fiat currency deposits are priced in
	USDCurrency = "usd"
)

// Dispatcher constants
const (
	// SweepLimit is the maximum number of withdrawals picked up per sweep
	SweepLimit = 50

	// DispatchBatchSize is the number of payout items sent per processor batch
	DispatchBatchSize = 10

	// StalenessThreshold is how long a processing withdrawal may go without
	// a status update before the sweep re-checks it
	StalenessThreshold = 72 * time.Hour

	// InterItemDelay is the pause between consecutive payout submissions in a batch
	InterItemDelay = 500 * time.Millisecond

	// InterBatchDelay is the pause between consecutive processor batches
	InterBatchDelay = 2 * time.Second
)

// Token cache constants
const (
	// ProcessorTokenTTL is how long a cached processor bearer token stays valid
	// locally. The processor issues 24h tokens; the margin absorbs clock skew.
	ProcessorTokenTTL = 23 * time.Hour
)

// TOTP constants
const (
	// TOTPPeriod is the time step of generated one-time codes
	TOTPPeriod = 30 * time.Second

	// TOTPDigits is the length of generated one-time codes
	TOTPDigits = 6
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

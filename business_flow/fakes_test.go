package businessflow

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Misty-clouds/eurobankv2/app/services"
	"github.com/Misty-clouds/eurobankv2/models"
	"github.com/shopspring/decimal"
)

// stubTxManager runs the unit of work without a real database transaction
type stubTxManager struct{}

func (stubTxManager) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// fakeUserRepo is an in-memory UserRepository
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uint]*models.User
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uint]*models.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) ByID(ctx context.Context, id uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id], nil
}

func (r *fakeUserRepo) Save(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == 0 {
		u.ID = uint(len(r.users) + 1)
	}
	r.users[u.ID] = u
	return nil
}

func (r *fakeUserRepo) SaveBatch(ctx context.Context, us []*models.User) error {
	for _, u := range us {
		if err := r.Save(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeUserRepo) ByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) LockByID(ctx context.Context, id uint) (*models.User, error) {
	return r.ByID(ctx, id)
}

func (r *fakeUserRepo) CreditBalances(ctx context.Context, userID uint, amount, profit decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.users[userID]
	u.Balance = u.Balance.Add(amount)
	u.ProfitBalance = u.ProfitBalance.Add(profit)
	return nil
}

func (r *fakeUserRepo) DebitProfit(ctx context.Context, userID uint, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.users[userID]
	if u.ProfitBalance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	u.ProfitBalance = u.ProfitBalance.Sub(amount)
	return nil
}

func (r *fakeUserRepo) RefundProfit(ctx context.Context, userID uint, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.users[userID]
	u.ProfitBalance = u.ProfitBalance.Add(amount)
	return nil
}

func (r *fakeUserRepo) AddTotalWithdrawn(ctx context.Context, userID uint, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.users[userID]
	u.TotalWithdrawn = u.TotalWithdrawn.Add(amount)
	return nil
}

// fakeDepositRepo is an in-memory DepositRepository with the same guard
// semantics the SQL implementation has
type fakeDepositRepo struct {
	mu       sync.Mutex
	deposits map[uint]*models.Deposit
	nextID   uint
}

func newFakeDepositRepo(deposits ...*models.Deposit) *fakeDepositRepo {
	r := &fakeDepositRepo{deposits: make(map[uint]*models.Deposit)}
	for _, d := range deposits {
		if d.ID == 0 {
			r.nextID++
			d.ID = r.nextID
		} else if d.ID > r.nextID {
			r.nextID = d.ID
		}
		r.deposits[d.ID] = d
	}
	return r
}

func (r *fakeDepositRepo) ByID(ctx context.Context, id uint) (*models.Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := r.deposits[id]; d != nil {
		c := *d
		return &c, nil
	}
	return nil, nil
}

func (r *fakeDepositRepo) Save(ctx context.Context, d *models.Deposit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == 0 {
		r.nextID++
		d.ID = r.nextID
	}
	d.CreatedAt = time.Now().UTC()
	r.deposits[d.ID] = d
	return nil
}

func (r *fakeDepositRepo) SaveBatch(ctx context.Context, ds []*models.Deposit) error {
	for _, d := range ds {
		if err := r.Save(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeDepositRepo) ByOrderID(ctx context.Context, orderID string) (*models.Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.deposits {
		if d.OrderID == orderID {
			c := *d
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeDepositRepo) ByPaymentID(ctx context.Context, paymentID string) (*models.Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.deposits {
		if d.PaymentID == paymentID {
			c := *d
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeDepositRepo) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Deposit
	for _, d := range r.deposits {
		if d.UserID == userID {
			c := *d
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeDepositRepo) Update(ctx context.Context, d *models.Deposit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deposits[d.ID] = d
	return nil
}

func (r *fakeDepositRepo) UpdateStatus(ctx context.Context, id uint, status models.DepositStatus, externalStatus, reason string, payload json.RawMessage) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.deposits[id]
	if d == nil || d.IsFinal() {
		return false, nil
	}
	d.Status = status
	d.ExternalStatus = externalStatus
	if reason != "" {
		d.StatusReason = reason
	}
	if len(payload) > 0 {
		d.Metadata = payload
	}
	return true, nil
}

func (r *fakeDepositRepo) ClaimCredit(ctx context.Context, id uint, profit decimal.Decimal, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.deposits[id]
	if d == nil || d.CreditedAt != nil || d.IsFinal() {
		return false, nil
	}
	d.CreditedAt = &at
	d.Profit = profit
	return true, nil
}

// fakeWithdrawalRepo is an in-memory WithdrawalRepository
type fakeWithdrawalRepo struct {
	mu          sync.Mutex
	withdrawals map[uint]*models.Withdrawal
	nextID      uint
}

func newFakeWithdrawalRepo(ws ...*models.Withdrawal) *fakeWithdrawalRepo {
	r := &fakeWithdrawalRepo{withdrawals: make(map[uint]*models.Withdrawal)}
	for _, w := range ws {
		if w.ID == 0 {
			r.nextID++
			w.ID = r.nextID
		} else if w.ID > r.nextID {
			r.nextID = w.ID
		}
		r.withdrawals[w.ID] = w
	}
	return r
}

func (r *fakeWithdrawalRepo) ByID(ctx context.Context, id uint) (*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w := r.withdrawals[id]; w != nil {
		c := *w
		return &c, nil
	}
	return nil, nil
}

func (r *fakeWithdrawalRepo) Save(ctx context.Context, w *models.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.ID == 0 {
		r.nextID++
		w.ID = r.nextID
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	r.withdrawals[w.ID] = w
	return nil
}

func (r *fakeWithdrawalRepo) SaveBatch(ctx context.Context, ws []*models.Withdrawal) error {
	for _, w := range ws {
		if err := r.Save(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeWithdrawalRepo) ByPayoutID(ctx context.Context, payoutID string) (*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.withdrawals {
		if w.PayoutID == payoutID && payoutID != "" {
			c := *w
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeWithdrawalRepo) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Withdrawal
	for _, w := range r.withdrawals {
		if w.UserID == userID {
			c := *w
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeWithdrawalRepo) ListDispatchable(ctx context.Context, staleBefore time.Time, limit int) ([]*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Withdrawal
	for _, w := range r.withdrawals {
		switch w.Status {
		case models.WithdrawalStatusPending:
			if w.CreatedAt.Before(staleBefore) {
				c := *w
				out = append(out, &c)
			}
		case models.WithdrawalStatusProcessing:
			last := w.CreatedAt
			if w.LastCheckedAt != nil {
				last = *w.LastCheckedAt
			}
			if last.Before(staleBefore) {
				c := *w
				out = append(out, &c)
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeWithdrawalRepo) Update(ctx context.Context, w *models.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.withdrawals[w.ID] = w
	return nil
}

func (r *fakeWithdrawalRepo) MarkDispatched(ctx context.Context, id uint, batchID, payoutID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.withdrawals[id]
	if w == nil || w.Status != models.WithdrawalStatusPending {
		return false, nil
	}
	w.Status = models.WithdrawalStatusProcessing
	w.BatchID = batchID
	w.PayoutID = payoutID
	w.DispatchedAt = &at
	return true, nil
}

func (r *fakeWithdrawalRepo) UpdateStatus(ctx context.Context, id uint, status models.WithdrawalStatus, externalStatus, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.withdrawals[id]
	if w == nil || w.IsFinal() {
		return false, nil
	}
	w.Status = status
	w.ExternalStatus = externalStatus
	if reason != "" {
		w.StatusReason = reason
	}
	return true, nil
}

func (r *fakeWithdrawalRepo) TouchChecked(ctx context.Context, id uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w := r.withdrawals[id]; w != nil {
		w.LastCheckedAt = &at
	}
	return nil
}

func (r *fakeWithdrawalRepo) MarkFailedPending(ctx context.Context, id uint, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w := r.withdrawals[id]; w != nil {
		w.Status = models.WithdrawalStatusPending
		w.BatchID = ""
		w.PayoutID = ""
		w.StatusReason = reason
	}
	return nil
}

// fakeLedgerRepo is an in-memory WithdrawalLedgerRepository keyed by
// withdrawal ID, mirroring the unique index
type fakeLedgerRepo struct {
	mu      sync.Mutex
	entries map[uint]*models.WithdrawalLedgerEntry
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{entries: make(map[uint]*models.WithdrawalLedgerEntry)}
}

func (r *fakeLedgerRepo) Append(ctx context.Context, entry *models.WithdrawalLedgerEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.WithdrawalID]; ok {
		return false, nil
	}
	r.entries[entry.WithdrawalID] = entry
	return true, nil
}

func (r *fakeLedgerRepo) ByWithdrawalID(ctx context.Context, withdrawalID uint) (*models.WithdrawalLedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[withdrawalID], nil
}

func (r *fakeLedgerRepo) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.WithdrawalLedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.WithdrawalLedgerEntry
	for _, e := range r.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeVerificationRepo is an in-memory VerificationRequestRepository
type fakeVerificationRepo struct {
	mu       sync.Mutex
	requests map[uint]*models.VerificationRequest
	nextID   uint
}

func newFakeVerificationRepo(vrs ...*models.VerificationRequest) *fakeVerificationRepo {
	r := &fakeVerificationRepo{requests: make(map[uint]*models.VerificationRequest)}
	for _, vr := range vrs {
		if vr.ID == 0 {
			r.nextID++
			vr.ID = r.nextID
		} else if vr.ID > r.nextID {
			r.nextID = vr.ID
		}
		r.requests[vr.ID] = vr
	}
	return r
}

func (r *fakeVerificationRepo) ByID(ctx context.Context, id uint) (*models.VerificationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[id], nil
}

func (r *fakeVerificationRepo) Save(ctx context.Context, vr *models.VerificationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if vr.ID == 0 {
		r.nextID++
		vr.ID = r.nextID
	}
	_ = vr.BeforeCreate(nil)
	r.requests[vr.ID] = vr
	return nil
}

func (r *fakeVerificationRepo) SaveBatch(ctx context.Context, vrs []*models.VerificationRequest) error {
	for _, vr := range vrs {
		if err := r.Save(ctx, vr); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeVerificationRepo) ByUUID(ctx context.Context, u string) (*models.VerificationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, vr := range r.requests {
		if vr.UUID.String() == u {
			return vr, nil
		}
	}
	return nil, nil
}

func (r *fakeVerificationRepo) LatestUsableForUser(ctx context.Context, userID uint, now time.Time) (*models.VerificationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, vr := range r.requests {
		if vr.UserID == userID && vr.IsUsable(now) {
			return vr, nil
		}
	}
	return nil, nil
}

func (r *fakeVerificationRepo) MarkVerified(ctx context.Context, id uint, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vr := r.requests[id]
	if vr == nil || vr.Verified {
		return false, nil
	}
	vr.Verified = true
	vr.VerifiedAt = &at
	return true, nil
}

func (r *fakeVerificationRepo) HasVerifiedApproval(ctx context.Context, userID, withdrawalID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, vr := range r.requests {
		if vr.UserID == userID && vr.Verified && vr.WithdrawalID != nil && *vr.WithdrawalID == withdrawalID {
			return true, nil
		}
	}
	return false, nil
}

// fakeBatchRepo is an in-memory PayoutBatchRepository
type fakeBatchRepo struct {
	mu      sync.Mutex
	batches map[uint]*models.PayoutBatch
	nextID  uint
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{batches: make(map[uint]*models.PayoutBatch)}
}

func (r *fakeBatchRepo) ByID(ctx context.Context, id uint) (*models.PayoutBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[id], nil
}

func (r *fakeBatchRepo) Save(ctx context.Context, b *models.PayoutBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == 0 {
		r.nextID++
		b.ID = r.nextID
	}
	r.batches[b.ID] = b
	return nil
}

func (r *fakeBatchRepo) SaveBatch(ctx context.Context, bs []*models.PayoutBatch) error {
	for _, b := range bs {
		if err := r.Save(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeBatchRepo) ByBatchID(ctx context.Context, batchID string) (*models.PayoutBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		if b.BatchID == batchID {
			return b, nil
		}
	}
	return nil, nil
}

func (r *fakeBatchRepo) Finalize(ctx context.Context, id uint, submitted, failed int, status models.PayoutBatchStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b := r.batches[id]; b != nil {
		b.SubmittedCount = submitted
		b.FailedCount = failed
		b.Status = status
		b.CompletedAt = &at
	}
	return nil
}

// fakeSettingsRepo is an in-memory SettingsRepository
type fakeSettingsRepo struct {
	mu       sync.Mutex
	settings models.Settings
}

func (r *fakeSettingsRepo) Get(ctx context.Context) (*models.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.settings
	return &c, nil
}

func (r *fakeSettingsRepo) SetAutomaticWithdrawals(ctx context.Context, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings.AutomaticWithdrawals = enabled
	return nil
}

// fakeAuditRepo records audit entries
type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (r *fakeAuditRepo) ByID(ctx context.Context, id uint) (*models.AuditLog, error) { return nil, nil }

func (r *fakeAuditRepo) Save(ctx context.Context, a *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, a)
	return nil
}

func (r *fakeAuditRepo) SaveBatch(ctx context.Context, as []*models.AuditLog) error {
	for _, a := range as {
		if err := r.Save(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeAuditRepo) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries, nil
}

func (r *fakeAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// fakeProcessor is a configurable PaymentProcessor
type fakeProcessor struct {
	mu sync.Mutex

	createInvoiceFn func(ctx context.Context, in services.InvoiceInput) (*services.InvoiceResult, error)
	paymentStatusFn func(ctx context.Context, paymentID string) (*services.PaymentStatusResult, error)
	authenticateFn  func(ctx context.Context) (*services.AuthResult, error)
	submitPayoutFn  func(ctx context.Context, token string, item services.PayoutItem) (*services.PayoutResult, error)
	payoutStatusFn  func(ctx context.Context, token, payoutID string) (*services.PayoutStatusResult, error)

	submitCalls int
	pollCalls   int
}

func (p *fakeProcessor) Name() string { return "fake" }

func (p *fakeProcessor) CreateInvoice(ctx context.Context, in services.InvoiceInput) (*services.InvoiceResult, error) {
	if p.createInvoiceFn != nil {
		return p.createInvoiceFn(ctx, in)
	}
	return &services.InvoiceResult{PaymentID: "pay-1", PayAddress: "addr-1", Status: "waiting"}, nil
}

func (p *fakeProcessor) PaymentStatus(ctx context.Context, paymentID string) (*services.PaymentStatusResult, error) {
	p.mu.Lock()
	p.pollCalls++
	p.mu.Unlock()
	if p.paymentStatusFn != nil {
		return p.paymentStatusFn(ctx, paymentID)
	}
	return &services.PaymentStatusResult{PaymentID: paymentID, Status: "waiting"}, nil
}

func (p *fakeProcessor) Authenticate(ctx context.Context) (*services.AuthResult, error) {
	if p.authenticateFn != nil {
		return p.authenticateFn(ctx)
	}
	return &services.AuthResult{Token: "bearer-token", ExpiresIn: time.Hour}, nil
}

func (p *fakeProcessor) SubmitPayout(ctx context.Context, token string, item services.PayoutItem) (*services.PayoutResult, error) {
	p.mu.Lock()
	p.submitCalls++
	p.mu.Unlock()
	if p.submitPayoutFn != nil {
		return p.submitPayoutFn(ctx, token, item)
	}
	return &services.PayoutResult{PayoutID: "payout-" + item.ExtraID, Status: "creating"}, nil
}

func (p *fakeProcessor) PayoutStatus(ctx context.Context, token, payoutID string) (*services.PayoutStatusResult, error) {
	if p.payoutStatusFn != nil {
		return p.payoutStatusFn(ctx, token, payoutID)
	}
	return &services.PayoutStatusResult{PayoutID: payoutID, Status: "sending"}, nil
}

package businessflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Misty-clouds/eurobankv2/app/dto"
	"github.com/Misty-clouds/eurobankv2/app/services"
	"github.com/Misty-clouds/eurobankv2/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDepositFixture(t *testing.T) (*fakeDepositRepo, *fakeUserRepo, *fakeAuditRepo, *fakeProcessor, DepositFlow) {
	t.Helper()
	userRepo := newFakeUserRepo(&models.User{ID: 1, Email: "user@example.com"})
	depositRepo := newFakeDepositRepo()
	auditRepo := &fakeAuditRepo{}
	processor := &fakeProcessor{}
	flow := NewDepositFlow(depositRepo, userRepo, auditRepo, processor, stubTxManager{}, nil, nil)
	return depositRepo, userRepo, auditRepo, processor, flow
}

func TestInitiateDeposit(t *testing.T) {
	t.Run("creates invoice and pending deposit", func(t *testing.T) {
		depositRepo, _, auditRepo, _, flow := newDepositFixture(t)

		resp, err := flow.InitiateDeposit(context.Background(), &dto.CreateDepositRequest{
			UserID:      1,
			Amount:      decimal.NewFromInt(100),
			PayCurrency: "usdttrc20",
		}, nil)
		require.NoError(t, err)
		require.NotNil(t, resp)

		assert.Contains(t, resp.OrderID, "DEP-1-")
		assert.Equal(t, "pay-1", resp.PaymentID)
		assert.Equal(t, "addr-1", resp.PayAddress)
		assert.Equal(t, string(models.DepositStatusPending), resp.Status)

		stored, err := depositRepo.ByOrderID(context.Background(), resp.OrderID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, models.DepositStatusPending, stored.Status)

		assert.Contains(t, auditRepo.actions(), models.AuditActionDepositCreated)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		_, _, _, _, flow := newDepositFixture(t)
		_, err := flow.InitiateDeposit(context.Background(), &dto.CreateDepositRequest{
			UserID: 1, Amount: decimal.Zero, PayCurrency: "usdttrc20",
		}, nil)
		assert.ErrorIs(t, err, ErrAmountTooLow)
	})

	t.Run("rejects unknown user", func(t *testing.T) {
		_, _, _, _, flow := newDepositFixture(t)
		_, err := flow.InitiateDeposit(context.Background(), &dto.CreateDepositRequest{
			UserID: 42, Amount: decimal.NewFromInt(10), PayCurrency: "usdttrc20",
		}, nil)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("surfaces processor failure", func(t *testing.T) {
		_, _, _, processor, flow := newDepositFixture(t)
		processor.createInvoiceFn = func(ctx context.Context, in services.InvoiceInput) (*services.InvoiceResult, error) {
			return nil, errors.New("processor down")
		}
		_, err := flow.InitiateDeposit(context.Background(), &dto.CreateDepositRequest{
			UserID: 1, Amount: decimal.NewFromInt(10), PayCurrency: "usdttrc20",
		}, nil)
		require.Error(t, err)
		var berr *BusinessError
		require.ErrorAs(t, err, &berr)
		assert.Equal(t, "DEPOSIT_INVOICE_FAILED", berr.Code)
	})
}

func TestHandleDepositNotificationCreditsOnce(t *testing.T) {
	depositRepo, userRepo, auditRepo, _, flow := newDepositFixture(t)

	deposit := &models.Deposit{
		UserID:    1,
		OrderID:   "DEP-1-1700000000000",
		PaymentID: "555",
		Amount:    decimal.NewFromInt(100),
		Status:    models.DepositStatusPending,
	}
	require.NoError(t, depositRepo.Save(context.Background(), deposit))

	n := &dto.DepositNotification{OrderID: deposit.OrderID, PaymentID: "555", PaymentStatus: "finished"}

	require.NoError(t, flow.HandleNotification(context.Background(), n, nil))
	// Replay the exact same notification.
	require.NoError(t, flow.HandleNotification(context.Background(), n, nil))

	user, err := userRepo.ByID(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, user.Balance.Equal(decimal.NewFromInt(100)), "principal credited exactly once, got %s", user.Balance)
	assert.True(t, user.ProfitBalance.Equal(decimal.NewFromInt(30)), "profit credited exactly once, got %s", user.ProfitBalance)

	stored, err := depositRepo.ByID(context.Background(), deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CreditedAt)

	credits := 0
	for _, a := range auditRepo.actions() {
		if a == models.AuditActionDepositCredited {
			credits++
		}
	}
	assert.Equal(t, 1, credits)
}

func TestHandleDepositNotificationConcurrentDuplicates(t *testing.T) {
	depositRepo, userRepo, _, _, flow := newDepositFixture(t)

	deposit := &models.Deposit{
		UserID:    1,
		OrderID:   "DEP-1-1700000000001",
		PaymentID: "777",
		Amount:    decimal.NewFromInt(50),
		Status:    models.DepositStatusProcessing,
	}
	require.NoError(t, depositRepo.Save(context.Background(), deposit))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := &dto.DepositNotification{OrderID: deposit.OrderID, PaymentStatus: "finished"}
			_ = flow.HandleNotification(context.Background(), n, nil)
		}()
	}
	wg.Wait()

	user, err := userRepo.ByID(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, user.Balance.Equal(decimal.NewFromInt(50)), "balance moved exactly once, got %s", user.Balance)
}

func TestDepositProfitPolicy(t *testing.T) {
	t.Run("promotion tier pays flat 2", func(t *testing.T) {
		assert.True(t, DefaultProfitPolicy(decimal.NewFromInt(80)).Equal(decimal.NewFromInt(2)))
	})

	t.Run("everything else pays 30 percent", func(t *testing.T) {
		assert.True(t, DefaultProfitPolicy(decimal.NewFromInt(100)).Equal(decimal.NewFromInt(30)))
		assert.True(t, DefaultProfitPolicy(decimal.NewFromInt(10)).Equal(decimal.NewFromInt(3)))
	})

	t.Run("credit on the promotion tier lands exactly 2", func(t *testing.T) {
		depositRepo, userRepo, _, _, flow := newDepositFixture(t)
		deposit := &models.Deposit{
			UserID:  1,
			OrderID: "DEP-1-1700000000002",
			Amount:  decimal.NewFromInt(80),
			Status:  models.DepositStatusPending,
		}
		require.NoError(t, depositRepo.Save(context.Background(), deposit))

		n := &dto.DepositNotification{OrderID: deposit.OrderID, PaymentStatus: "finished"}
		require.NoError(t, flow.HandleNotification(context.Background(), n, nil))

		user, err := userRepo.ByID(context.Background(), 1)
		require.NoError(t, err)
		assert.True(t, user.ProfitBalance.Equal(decimal.NewFromInt(2)), "got %s", user.ProfitBalance)
	})
}

func TestHandleDepositNotificationTransitions(t *testing.T) {
	t.Run("non-terminal statuses update without credit", func(t *testing.T) {
		depositRepo, userRepo, _, _, flow := newDepositFixture(t)
		deposit := &models.Deposit{
			UserID:  1,
			OrderID: "DEP-1-1700000000003",
			Amount:  decimal.NewFromInt(25),
			Status:  models.DepositStatusPending,
		}
		require.NoError(t, depositRepo.Save(context.Background(), deposit))

		n := &dto.DepositNotification{OrderID: deposit.OrderID, PaymentStatus: "confirming"}
		require.NoError(t, flow.HandleNotification(context.Background(), n, nil))

		stored, _ := depositRepo.ByID(context.Background(), deposit.ID)
		assert.Equal(t, models.DepositStatusProcessing, stored.Status)
		assert.Nil(t, stored.CreditedAt)

		user, _ := userRepo.ByID(context.Background(), 1)
		assert.True(t, user.Balance.IsZero())
	})

	t.Run("terminal deposit ignores late downgrades", func(t *testing.T) {
		depositRepo, _, _, _, flow := newDepositFixture(t)
		deposit := &models.Deposit{
			UserID:  1,
			OrderID: "DEP-1-1700000000004",
			Amount:  decimal.NewFromInt(25),
			Status:  models.DepositStatusPending,
		}
		require.NoError(t, depositRepo.Save(context.Background(), deposit))

		finish := &dto.DepositNotification{OrderID: deposit.OrderID, PaymentStatus: "finished"}
		require.NoError(t, flow.HandleNotification(context.Background(), finish, nil))

		// An out-of-order "confirming" arrives after completion.
		late := &dto.DepositNotification{OrderID: deposit.OrderID, PaymentStatus: "confirming"}
		require.NoError(t, flow.HandleNotification(context.Background(), late, nil))

		stored, _ := depositRepo.ByID(context.Background(), deposit.ID)
		assert.Equal(t, models.DepositStatusCompleted, stored.Status)
	})

	t.Run("late finish on a failed deposit does not credit", func(t *testing.T) {
		depositRepo, userRepo, _, _, flow := newDepositFixture(t)
		deposit := &models.Deposit{
			UserID:  1,
			OrderID: "DEP-1-1700000000009",
			Amount:  decimal.NewFromInt(100),
			Status:  models.DepositStatusFailed,
		}
		require.NoError(t, depositRepo.Save(context.Background(), deposit))

		// The processor reports success long after the deposit expired.
		n := &dto.DepositNotification{OrderID: deposit.OrderID, PaymentStatus: "finished"}
		require.NoError(t, flow.HandleNotification(context.Background(), n, nil))

		user, _ := userRepo.ByID(context.Background(), 1)
		assert.True(t, user.Balance.IsZero(), "failed deposit must never credit, got %s", user.Balance)

		stored, _ := depositRepo.ByID(context.Background(), deposit.ID)
		assert.Equal(t, models.DepositStatusFailed, stored.Status)
		assert.Nil(t, stored.CreditedAt)
	})

	t.Run("processor payload is persisted on the deposit", func(t *testing.T) {
		depositRepo, _, _, _, flow := newDepositFixture(t)
		deposit := &models.Deposit{
			UserID:  1,
			OrderID: "DEP-1-1700000000010",
			Amount:  decimal.NewFromInt(25),
			Status:  models.DepositStatusPending,
		}
		require.NoError(t, depositRepo.Save(context.Background(), deposit))

		n := &dto.DepositNotification{OrderID: deposit.OrderID, PaymentID: "888", PaymentStatus: "confirming"}
		require.NoError(t, flow.HandleNotification(context.Background(), n, nil))

		stored, _ := depositRepo.ByID(context.Background(), deposit.ID)
		require.NotEmpty(t, stored.Metadata)
		assert.Contains(t, string(stored.Metadata), `"payment_status":"confirming"`)
	})

	t.Run("unknown deposit is reported", func(t *testing.T) {
		_, _, _, _, flow := newDepositFixture(t)
		n := &dto.DepositNotification{OrderID: "DEP-9-0", PaymentStatus: "finished"}
		err := flow.HandleNotification(context.Background(), n, nil)
		assert.ErrorIs(t, err, ErrDepositNotFound)
	})

	t.Run("payment ID is adopted from the first notification", func(t *testing.T) {
		depositRepo, _, _, _, flow := newDepositFixture(t)
		deposit := &models.Deposit{
			UserID:  1,
			OrderID: "DEP-1-1700000000005",
			Amount:  decimal.NewFromInt(25),
			Status:  models.DepositStatusPending,
		}
		require.NoError(t, depositRepo.Save(context.Background(), deposit))

		n := &dto.DepositNotification{OrderID: deposit.OrderID, PaymentID: "999", PaymentStatus: "waiting"}
		require.NoError(t, flow.HandleNotification(context.Background(), n, nil))

		stored, _ := depositRepo.ByID(context.Background(), deposit.ID)
		assert.Equal(t, "999", stored.PaymentID)
	})
}

func TestPollDepositStatus(t *testing.T) {
	t.Run("poll completes and credits through the shared path", func(t *testing.T) {
		depositRepo, userRepo, _, processor, flow := newDepositFixture(t)
		deposit := &models.Deposit{
			UserID:    1,
			OrderID:   "DEP-1-1700000000006",
			PaymentID: "321",
			Amount:    decimal.NewFromInt(40),
			Status:    models.DepositStatusProcessing,
		}
		require.NoError(t, depositRepo.Save(context.Background(), deposit))

		processor.paymentStatusFn = func(ctx context.Context, paymentID string) (*services.PaymentStatusResult, error) {
			return &services.PaymentStatusResult{PaymentID: paymentID, Status: "finished"}, nil
		}

		resp, err := flow.PollStatus(context.Background(), deposit.OrderID, nil)
		require.NoError(t, err)
		assert.Equal(t, string(models.DepositStatusCompleted), resp.Status)
		assert.True(t, resp.Credited)

		user, _ := userRepo.ByID(context.Background(), 1)
		assert.True(t, user.Balance.Equal(decimal.NewFromInt(40)))
	})

	t.Run("processor outage degrades to the stored view", func(t *testing.T) {
		depositRepo, _, _, processor, flow := newDepositFixture(t)
		deposit := &models.Deposit{
			UserID:    1,
			OrderID:   "DEP-1-1700000000007",
			PaymentID: "322",
			Amount:    decimal.NewFromInt(40),
			Status:    models.DepositStatusProcessing,
		}
		require.NoError(t, depositRepo.Save(context.Background(), deposit))

		processor.paymentStatusFn = func(ctx context.Context, paymentID string) (*services.PaymentStatusResult, error) {
			return nil, errors.New("connection refused")
		}

		resp, err := flow.PollStatus(context.Background(), deposit.OrderID, nil)
		require.NoError(t, err)
		assert.Equal(t, string(models.DepositStatusProcessing), resp.Status)
	})

	t.Run("final deposit is not polled", func(t *testing.T) {
		depositRepo, _, _, processor, flow := newDepositFixture(t)
		deposit := &models.Deposit{
			UserID:    1,
			OrderID:   "DEP-1-1700000000008",
			PaymentID: "323",
			Amount:    decimal.NewFromInt(40),
			Status:    models.DepositStatusCompleted,
		}
		require.NoError(t, depositRepo.Save(context.Background(), deposit))

		_, err := flow.PollStatus(context.Background(), deposit.OrderID, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, processor.pollCalls)
	})
}

package businessflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/Misty-clouds/eurobankv2/app/dto"
	"github.com/Misty-clouds/eurobankv2/app/services"
	"github.com/Misty-clouds/eurobankv2/models"
	"github.com/Misty-clouds/eurobankv2/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base32 of the RFC 6238 reference key "12345678901234567890".
const totpTestSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

type verificationFixture struct {
	repo      *fakeVerificationRepo
	auditRepo *fakeAuditRepo
	totp      *services.TOTPService
	flow      VerificationFlow
}

func newVerificationFixture(t *testing.T) *verificationFixture {
	t.Helper()
	totp, err := services.NewTOTPService(totpTestSecret)
	require.NoError(t, err)
	f := &verificationFixture{
		repo:      newFakeVerificationRepo(),
		auditRepo: &fakeAuditRepo{},
		totp:      totp,
	}
	f.flow = NewVerificationFlow(f.repo, f.auditRepo, totp)
	return f
}

func TestCreateVerificationRequest(t *testing.T) {
	f := newVerificationFixture(t)

	resp, err := f.flow.CreateRequest(context.Background(), &dto.CreateVerificationRequest{
		UserID:       1,
		WithdrawalID: 7,
		Amount:       decimal.NewFromInt(250),
	}, nil)
	require.NoError(t, err)

	assert.Len(t, resp.VerificationString, 32)
	_, err = hex.DecodeString(resp.VerificationString)
	assert.NoError(t, err, "verification string is hex")

	sum := sha256.Sum256([]byte(resp.VerificationString))
	assert.Equal(t, hex.EncodeToString(sum[:])[:6], resp.Code)

	stored, err := f.repo.ByUUID(context.Background(), resp.UUID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.WithdrawalID)
	assert.Equal(t, uint(7), *stored.WithdrawalID)

	require.NotNil(t, resp.ExpiresAt)
	assert.WithinDuration(t, utils.UTCNow().Add(15*time.Minute), *resp.ExpiresAt, 5*time.Second)

	assert.Contains(t, f.auditRepo.actions(), models.AuditActionVerificationCreated)
}

func TestVerifyWithTOTP(t *testing.T) {
	t.Run("valid code verifies", func(t *testing.T) {
		f := newVerificationFixture(t)
		resp, err := f.flow.CreateRequest(context.Background(), &dto.CreateVerificationRequest{
			UserID: 1, WithdrawalID: 7, Amount: decimal.NewFromInt(100),
		}, nil)
		require.NoError(t, err)

		out, err := f.flow.VerifyWithTOTP(context.Background(), &dto.VerifyPayoutRequest{
			UUID:     resp.UUID,
			TOTPCode: f.totp.Generate(),
		}, nil)
		require.NoError(t, err)
		assert.True(t, out.Verified)
		assert.NotNil(t, out.VerifiedAt)
		assert.Contains(t, f.auditRepo.actions(), models.AuditActionVerificationCompleted)
	})

	t.Run("replay is rejected", func(t *testing.T) {
		f := newVerificationFixture(t)
		resp, err := f.flow.CreateRequest(context.Background(), &dto.CreateVerificationRequest{
			UserID: 1, WithdrawalID: 7, Amount: decimal.NewFromInt(100),
		}, nil)
		require.NoError(t, err)

		code := f.totp.Generate()
		_, err = f.flow.VerifyWithTOTP(context.Background(), &dto.VerifyPayoutRequest{UUID: resp.UUID, TOTPCode: code}, nil)
		require.NoError(t, err)

		_, err = f.flow.VerifyWithTOTP(context.Background(), &dto.VerifyPayoutRequest{UUID: resp.UUID, TOTPCode: code}, nil)
		assert.ErrorIs(t, err, ErrAlreadyVerified)
	})

	t.Run("wrong code is rejected and audited", func(t *testing.T) {
		f := newVerificationFixture(t)
		resp, err := f.flow.CreateRequest(context.Background(), &dto.CreateVerificationRequest{
			UserID: 1, WithdrawalID: 7, Amount: decimal.NewFromInt(100),
		}, nil)
		require.NoError(t, err)

		code := f.totp.Generate()
		wrong := "000000"
		if wrong == code {
			wrong = "000001"
		}
		_, err = f.flow.VerifyWithTOTP(context.Background(), &dto.VerifyPayoutRequest{UUID: resp.UUID, TOTPCode: wrong}, nil)
		assert.ErrorIs(t, err, ErrInvalidTOTPCode)
		assert.Contains(t, f.auditRepo.actions(), models.AuditActionVerificationFailed)
	})

	t.Run("expired challenge is rejected", func(t *testing.T) {
		f := newVerificationFixture(t)
		expired := utils.UTCNow().Add(-time.Minute)
		vr := &models.VerificationRequest{
			UserID:             1,
			Amount:             decimal.NewFromInt(100),
			VerificationString: "deadbeefdeadbeefdeadbeefdeadbeef",
			Code:               "abc123",
			ExpiresAt:          &expired,
		}
		require.NoError(t, f.repo.Save(context.Background(), vr))

		_, err := f.flow.VerifyWithTOTP(context.Background(), &dto.VerifyPayoutRequest{
			UUID:     vr.UUID.String(),
			TOTPCode: f.totp.Generate(),
		}, nil)
		assert.ErrorIs(t, err, ErrVerificationExpired)
	})

	t.Run("unknown challenge is reported", func(t *testing.T) {
		f := newVerificationFixture(t)
		_, err := f.flow.VerifyWithTOTP(context.Background(), &dto.VerifyPayoutRequest{
			UUID:     "2d1f7c58-8a3e-4d28-9f6e-000000000000",
			TOTPCode: f.totp.Generate(),
		}, nil)
		assert.ErrorIs(t, err, ErrVerificationNotFound)
	})
}

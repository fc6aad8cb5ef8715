package businessflow

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/Misty-clouds/eurobankv2/app/dto"
	"github.com/Misty-clouds/eurobankv2/app/services"
	"github.com/Misty-clouds/eurobankv2/models"
	"github.com/Misty-clouds/eurobankv2/repository"
	"github.com/Misty-clouds/eurobankv2/utils"
)

// verificationTTL bounds how long an open approval challenge stays usable
const verificationTTL = 15 * time.Minute

// VerificationFlow defines payout approval operations
type VerificationFlow interface {
	CreateRequest(ctx context.Context, req *dto.CreateVerificationRequest, metadata *ClientMetadata) (*dto.CreateVerificationResponse, error)
	VerifyWithTOTP(ctx context.Context, req *dto.VerifyPayoutRequest, metadata *ClientMetadata) (*dto.VerifyPayoutResponse, error)
}

// VerificationFlowImpl implements VerificationFlow
type VerificationFlowImpl struct {
	verificationRepo repository.VerificationRequestRepository
	auditRepo        repository.AuditLogRepository
	totp             *services.TOTPService
}

// NewVerificationFlow creates a new verification flow
func NewVerificationFlow(
	verificationRepo repository.VerificationRequestRepository,
	auditRepo repository.AuditLogRepository,
	totp *services.TOTPService,
) VerificationFlow {
	return &VerificationFlowImpl{
		verificationRepo: verificationRepo,
		auditRepo:        auditRepo,
		totp:             totp,
	}
}

// CreateRequest opens an approval challenge: a random verification string
// plus a short code derived from it. The code is the first six hex digits of
// the string's SHA-256, so the operator can cross-check the challenge they
// are approving without reading the whole string aloud.
func (f *VerificationFlowImpl) CreateRequest(ctx context.Context, req *dto.CreateVerificationRequest, metadata *ClientMetadata) (*dto.CreateVerificationResponse, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, NewBusinessError("VERIFICATION_RANDOM_FAILED", "failed to generate verification string", err)
	}
	verificationString := hex.EncodeToString(buf[:])

	sum := sha256.Sum256([]byte(verificationString))
	code := hex.EncodeToString(sum[:])[:6]

	vr := &models.VerificationRequest{
		UserID:             req.UserID,
		WithdrawalID:       utils.ToPtr(req.WithdrawalID),
		Amount:             req.Amount,
		VerificationString: verificationString,
		Code:               code,
		ExpiresAt:          utils.UTCNowAddPtr(verificationTTL),
	}
	if err := f.verificationRepo.Save(ctx, vr); err != nil {
		return nil, NewBusinessError("VERIFICATION_SAVE_FAILED", "failed to save verification request", err)
	}

	f.createAuditLog(ctx, &req.UserID, models.AuditActionVerificationCreated,
		fmt.Sprintf("verification %s opened for withdrawal %d amount %s", vr.UUID, req.WithdrawalID, req.Amount.String()),
		true, nil, metadata)

	return &dto.CreateVerificationResponse{
		UUID:               vr.UUID.String(),
		Code:               vr.Code,
		VerificationString: vr.VerificationString,
		Amount:             vr.Amount,
		ExpiresAt:          vr.ExpiresAt,
	}, nil
}

// VerifyWithTOTP confirms a challenge with a time-based code. The verified
// flag is flipped with a guard so a replayed code cannot re-verify.
func (f *VerificationFlowImpl) VerifyWithTOTP(ctx context.Context, req *dto.VerifyPayoutRequest, metadata *ClientMetadata) (*dto.VerifyPayoutResponse, error) {
	vr, err := f.verificationRepo.ByUUID(ctx, req.UUID)
	if err != nil {
		return nil, NewBusinessError("VERIFICATION_LOOKUP_FAILED", "failed to look up verification request", err)
	}
	if vr == nil {
		return nil, ErrVerificationNotFound
	}

	now := utils.UTCNow()
	if vr.Verified {
		return nil, ErrAlreadyVerified
	}
	if !vr.IsUsable(now) {
		return nil, ErrVerificationExpired
	}

	if !f.totp.Validate(req.TOTPCode) {
		f.createAuditLog(ctx, &vr.UserID, models.AuditActionVerificationFailed,
			fmt.Sprintf("verification %s: TOTP rejected", vr.UUID),
			false, nil, metadata)
		return nil, ErrInvalidTOTPCode
	}

	flipped, err := f.verificationRepo.MarkVerified(ctx, vr.ID, now)
	if err != nil {
		return nil, NewBusinessError("VERIFICATION_UPDATE_FAILED", "failed to mark verification", err)
	}
	if !flipped {
		return nil, ErrAlreadyVerified
	}

	f.createAuditLog(ctx, &vr.UserID, models.AuditActionVerificationCompleted,
		fmt.Sprintf("verification %s confirmed for amount %s", vr.UUID, vr.Amount.String()),
		true, nil, metadata)

	return &dto.VerifyPayoutResponse{
		Verified:   true,
		VerifiedAt: &now,
	}, nil
}

func (f *VerificationFlowImpl) createAuditLog(ctx context.Context, userID *uint, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) {
	ipAddress := ""
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}

	audit := &models.AuditLog{
		UserID:       userID,
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		ErrorMessage: errorMsg,
	}
	if err := f.auditRepo.Save(ctx, audit); err != nil {
		log.Printf("failed to save audit log (%s): %v", action, err)
	}
}

package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/Misty-clouds/eurobankv2/app/dto"
	"github.com/Misty-clouds/eurobankv2/models"
	"github.com/Misty-clouds/eurobankv2/repository"
	"github.com/Misty-clouds/eurobankv2/utils"
)

// WebhookFlow is the single entry point for processor IPNs. It verifies the
// signature over the raw body, decides whether the notification describes a
// deposit or a payout, and hands it to the matching flow.
type WebhookFlow interface {
	HandleNotification(ctx context.Context, raw []byte, sigHeader string, metadata *ClientMetadata) (string, error)
}

// WebhookFlowImpl implements WebhookFlow
type WebhookFlowImpl struct {
	depositFlow    DepositFlow
	withdrawalFlow WithdrawalFlow
	auditRepo      repository.AuditLogRepository
	secret         string
}

// NewWebhookFlow creates a new webhook flow with the shared IPN secret
func NewWebhookFlow(
	depositFlow DepositFlow,
	withdrawalFlow WithdrawalFlow,
	auditRepo repository.AuditLogRepository,
	secret string,
) WebhookFlow {
	return &WebhookFlowImpl{
		depositFlow:    depositFlow,
		withdrawalFlow: withdrawalFlow,
		auditRepo:      auditRepo,
		secret:         secret,
	}
}

// HandleNotification returns the handled notification kind ("deposit" or
// "withdrawal") on success.
func (f *WebhookFlowImpl) HandleNotification(ctx context.Context, raw []byte, sigHeader string, metadata *ClientMetadata) (string, error) {
	if sigHeader == "" {
		f.rejectAudit(ctx, "missing signature header", metadata)
		return "", ErrMissingSignature
	}
	if !verifyWebhookHMAC(raw, sigHeader, f.secret) {
		f.rejectAudit(ctx, "signature mismatch", metadata)
		return "", ErrInvalidSignature
	}

	switch dto.SniffWebhookKind(raw) {
	case dto.WebhookKindDeposit:
		var n dto.DepositNotification
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", ErrMalformedPayload
		}
		if err := f.depositFlow.HandleNotification(ctx, &n, metadata); err != nil {
			return "", err
		}
		return dto.WebhookKindDeposit, nil

	case dto.WebhookKindWithdrawal:
		var n dto.WithdrawalNotification
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", ErrMalformedPayload
		}
		if err := f.withdrawalFlow.HandleNotification(ctx, &n, metadata); err != nil {
			return "", err
		}
		return dto.WebhookKindWithdrawal, nil

	default:
		f.rejectAudit(ctx, "unrecognized notification shape", metadata)
		return "", ErrUnknownWebhookType
	}
}

func (f *WebhookFlowImpl) rejectAudit(ctx context.Context, reason string, metadata *ClientMetadata) {
	ipAddress := ""
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}
	description := fmt.Sprintf("webhook rejected: %s", reason)
	audit := &models.AuditLog{
		Action:      models.AuditActionWebhookRejected,
		Description: &description,
		Success:     utils.ToPtr(false),
		IPAddress:   &ipAddress,
		UserAgent:   &userAgent,
	}
	if err := f.auditRepo.Save(ctx, audit); err != nil {
		log.Printf("failed to save audit log (%s): %v", models.AuditActionWebhookRejected, err)
	}
}

package handlers

import (
	"github.com/Misty-clouds/eurobankv2/app/dto"
	businessflow "github.com/Misty-clouds/eurobankv2/business_flow"
	"github.com/gofiber/fiber/v3"
)

// SignatureHeader is the processor's IPN signature header
const SignatureHeader = "x-nowpayments-sig"

type WebhookHandlerInterface interface {
	Handle(c fiber.Ctx) error
}

type WebhookHandler struct {
	flow businessflow.WebhookFlow
}

func NewWebhookHandler(flow businessflow.WebhookFlow) *WebhookHandler {
	return &WebhookHandler{flow: flow}
}

// Handle receives processor IPNs for deposits and payouts alike. The
// signature is computed over the raw body, so it must be read before any
// JSON parsing touches it.
func (h *WebhookHandler) Handle(c fiber.Ctx) error {
	raw := c.Body()
	sig := c.Get(SignatureHeader)

	meta := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	kind, err := h.flow.HandleNotification(requestCtx(c, "/api/v1/payments/webhook"), raw, sig, meta)
	if err != nil {
		return mapWebhookErr(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.WebhookAck{Success: true, Type: kind})
}

func mapWebhookErr(c fiber.Ctx, err error) error {
	switch {
	case businessflow.IsMissingSignature(err):
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Missing signature", Error: dto.ErrorDetail{Code: "MISSING_SIGNATURE"}})
	case businessflow.IsInvalidSignature(err):
		return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{Success: false, Message: "Invalid signature", Error: dto.ErrorDetail{Code: "INVALID_SIGNATURE"}})
	case businessflow.IsUnknownWebhookType(err), businessflow.IsMalformedPayload(err):
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Unrecognized notification", Error: dto.ErrorDetail{Code: "UNKNOWN_NOTIFICATION"}})
	case businessflow.IsDepositNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{Success: false, Message: "Deposit not found", Error: dto.ErrorDetail{Code: "DEPOSIT_NOT_FOUND"}})
	case businessflow.IsWithdrawalNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{Success: false, Message: "Withdrawal not found", Error: dto.ErrorDetail{Code: "WITHDRAWAL_NOT_FOUND"}})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{Success: false, Message: "Webhook processing failed", Error: dto.ErrorDetail{Code: "WEBHOOK_FAILED", Details: err.Error()}})
	}
}

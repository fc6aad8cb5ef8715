package handlers

import (
	"github.com/Misty-clouds/eurobankv2/app/dto"
	"github.com/Misty-clouds/eurobankv2/app/services"
	businessflow "github.com/Misty-clouds/eurobankv2/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type VerificationHandlerInterface interface {
	Create(c fiber.Ctx) error
	Verify(c fiber.Ctx) error
	TOTPStatus(c fiber.Ctx) error
}

type VerificationHandler struct {
	flow      businessflow.VerificationFlow
	totp      *services.TOTPService
	validator *validator.Validate
}

func NewVerificationHandler(flow businessflow.VerificationFlow, totp *services.TOTPService) *VerificationHandler {
	return &VerificationHandler{flow: flow, totp: totp, validator: validator.New()}
}

// Create opens a payout approval challenge
func (h *VerificationHandler) Create(c fiber.Ctx) error {
	var req dto.CreateVerificationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid request body", Error: dto.ErrorDetail{Code: "INVALID_REQUEST"}})
	}
	if err := h.validator.Struct(&req); err != nil {
		return validationError(c, err)
	}

	meta := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	resp, err := h.flow.CreateRequest(requestCtx(c, "/api/v1/verifications"), &req, meta)
	if err != nil {
		return mapVerificationErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Verification created", Data: resp})
}

// Verify confirms an approval challenge with a TOTP code
func (h *VerificationHandler) Verify(c fiber.Ctx) error {
	var req dto.VerifyPayoutRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid request body", Error: dto.ErrorDetail{Code: "INVALID_REQUEST"}})
	}
	if err := h.validator.Struct(&req); err != nil {
		return validationError(c, err)
	}

	meta := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	resp, err := h.flow.VerifyWithTOTP(requestCtx(c, "/api/v1/verifications/verify"), &req, meta)
	if err != nil {
		return mapVerificationErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Verification confirmed", Data: resp})
}

// TOTPStatus lets an operator cross-check their authenticator against the
// server: current code, next code, and how long the current one stays valid.
func (h *VerificationHandler) TOTPStatus(c fiber.Ctx) error {
	resp := dto.TOTPStatusResponse{
		Current:          h.totp.Generate(),
		Next:             h.totp.Next(),
		RemainingSeconds: int(h.totp.Remaining().Seconds()),
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "TOTP status", Data: resp})
}

func mapVerificationErr(c fiber.Ctx, err error) error {
	switch {
	case businessflow.IsVerificationNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{Success: false, Message: "Verification not found", Error: dto.ErrorDetail{Code: "VERIFICATION_NOT_FOUND"}})
	case businessflow.IsVerificationExpired(err):
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Verification expired", Error: dto.ErrorDetail{Code: "VERIFICATION_EXPIRED"}})
	case businessflow.IsInvalidTOTPCode(err):
		return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{Success: false, Message: "Invalid TOTP code", Error: dto.ErrorDetail{Code: "INVALID_TOTP_CODE"}})
	case businessflow.IsAlreadyVerified(err):
		return c.Status(fiber.StatusConflict).JSON(dto.APIResponse{Success: false, Message: "Already verified", Error: dto.ErrorDetail{Code: "ALREADY_VERIFIED"}})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{Success: false, Message: "Verification failed", Error: dto.ErrorDetail{Code: "VERIFICATION_FAILED", Details: err.Error()}})
	}
}

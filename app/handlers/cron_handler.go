package handlers

import (
	"github.com/Misty-clouds/eurobankv2/app/dto"
	businessflow "github.com/Misty-clouds/eurobankv2/business_flow"
	"github.com/Misty-clouds/eurobankv2/repository"
	"github.com/gofiber/fiber/v3"
)

type CronHandlerInterface interface {
	ProcessWithdrawals(c fiber.Ctx) error
	SetAutomaticWithdrawals(c fiber.Ctx) error
}

// CronHandler exposes the dispatcher to an external scheduler and lets an
// operator flip the automatic-withdrawals toggle.
type CronHandler struct {
	dispatcher   businessflow.PayoutDispatcher
	settingsRepo repository.SettingsRepository
}

func NewCronHandler(dispatcher businessflow.PayoutDispatcher, settingsRepo repository.SettingsRepository) *CronHandler {
	return &CronHandler{dispatcher: dispatcher, settingsRepo: settingsRepo}
}

// ProcessWithdrawals runs one dispatcher sweep synchronously
func (h *CronHandler) ProcessWithdrawals(c fiber.Ctx) error {
	resp, err := h.dispatcher.Sweep(requestCtx(c, "/api/v1/cron/process-withdrawals"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{Success: false, Message: "Sweep failed", Error: dto.ErrorDetail{Code: "SWEEP_FAILED", Details: err.Error()}})
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Sweep completed", Data: resp})
}

// SetAutomaticWithdrawals flips the dispatcher toggle
func (h *CronHandler) SetAutomaticWithdrawals(c fiber.Ctx) error {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.Bind().JSON(&req); err != nil || req.Enabled == nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid request body", Error: dto.ErrorDetail{Code: "INVALID_REQUEST"}})
	}
	if err := h.settingsRepo.SetAutomaticWithdrawals(requestCtx(c, "/api/v1/admin/settings/automatic-withdrawals"), *req.Enabled); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{Success: false, Message: "Failed to update settings", Error: dto.ErrorDetail{Code: "SETTINGS_UPDATE_FAILED", Details: err.Error()}})
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Settings updated"})
}

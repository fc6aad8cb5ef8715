package handlers

import (
	"strconv"

	"github.com/Misty-clouds/eurobankv2/app/dto"
	businessflow "github.com/Misty-clouds/eurobankv2/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type DepositHandlerInterface interface {
	Create(c fiber.Ctx) error
	GetStatus(c fiber.Ctx) error
	CheckStatus(c fiber.Ctx) error
	List(c fiber.Ctx) error
}

type DepositHandler struct {
	flow      businessflow.DepositFlow
	validator *validator.Validate
}

func NewDepositHandler(flow businessflow.DepositFlow) *DepositHandler {
	return &DepositHandler{flow: flow, validator: validator.New()}
}

// Create opens a deposit invoice at the processor and tracks it locally
func (h *DepositHandler) Create(c fiber.Ctx) error {
	var req dto.CreateDepositRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid request body", Error: dto.ErrorDetail{Code: "INVALID_REQUEST"}})
	}
	if err := h.validator.Struct(&req); err != nil {
		return validationError(c, err)
	}

	meta := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	resp, err := h.flow.InitiateDeposit(requestCtx(c, "/api/v1/deposits"), &req, meta)
	if err != nil {
		return mapDepositErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Deposit created", Data: resp})
}

// GetStatus returns the stored view of a deposit by merchant order ID
func (h *DepositHandler) GetStatus(c fiber.Ctx) error {
	orderID := c.Params("orderID")
	resp, err := h.flow.GetStatus(requestCtx(c, "/api/v1/deposits/"+orderID), orderID)
	if err != nil {
		return mapDepositErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Deposit status", Data: resp})
}

// CheckStatus polls the processor and reconciles before answering
func (h *DepositHandler) CheckStatus(c fiber.Ctx) error {
	orderID := c.Params("orderID")
	meta := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	resp, err := h.flow.PollStatus(requestCtx(c, "/api/v1/deposits/"+orderID+"/check"), orderID, meta)
	if err != nil {
		return mapDepositErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Deposit status checked", Data: resp})
}

// List returns a user's deposits, newest first
func (h *DepositHandler) List(c fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("userID"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid user ID", Error: dto.ErrorDetail{Code: "INVALID_USER_ID"}})
	}
	limit := fiber.Query(c, "limit", 50)
	offset := fiber.Query(c, "offset", 0)

	resp, err := h.flow.ListByUser(requestCtx(c, "/api/v1/users/deposits"), uint(userID), limit, offset)
	if err != nil {
		return mapDepositErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Deposits", Data: resp})
}

func validationError(c fiber.Ctx, err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Validation failed", Error: dto.ErrorDetail{Code: "VALIDATION_ERROR", Details: getValidationErrorMessage(verrs[0])}})
	}
	return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Validation failed", Error: dto.ErrorDetail{Code: "VALIDATION_ERROR", Details: err.Error()}})
}

func mapDepositErr(c fiber.Ctx, err error) error {
	switch {
	case businessflow.IsDepositNotFound(err), businessflow.IsOrderIDRequired(err):
		return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{Success: false, Message: "Deposit not found", Error: dto.ErrorDetail{Code: "DEPOSIT_NOT_FOUND"}})
	case businessflow.IsUserNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{Success: false, Message: "User not found", Error: dto.ErrorDetail{Code: "USER_NOT_FOUND"}})
	case businessflow.IsAmountTooLow(err):
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Amount too low", Error: dto.ErrorDetail{Code: "AMOUNT_TOO_LOW"}})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{Success: false, Message: "Deposit operation failed", Error: dto.ErrorDetail{Code: "DEPOSIT_OPERATION_FAILED", Details: err.Error()}})
	}
}

package handlers

import (
	"strconv"

	"github.com/Misty-clouds/eurobankv2/app/dto"
	businessflow "github.com/Misty-clouds/eurobankv2/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type WithdrawalHandlerInterface interface {
	Create(c fiber.Ctx) error
	Get(c fiber.Ctx) error
	CheckStatus(c fiber.Ctx) error
	List(c fiber.Ctx) error
	Ledger(c fiber.Ctx) error
	AdminUpdate(c fiber.Ctx) error
}

type WithdrawalHandler struct {
	flow      businessflow.WithdrawalFlow
	validator *validator.Validate
}

func NewWithdrawalHandler(flow businessflow.WithdrawalFlow) *WithdrawalHandler {
	return &WithdrawalHandler{flow: flow, validator: validator.New()}
}

// Create queues a withdrawal; the profit balance is debited immediately
func (h *WithdrawalHandler) Create(c fiber.Ctx) error {
	var req dto.CreateWithdrawalRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid request body", Error: dto.ErrorDetail{Code: "INVALID_REQUEST"}})
	}
	if err := h.validator.Struct(&req); err != nil {
		return validationError(c, err)
	}

	meta := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	resp, err := h.flow.RequestWithdrawal(requestCtx(c, "/api/v1/withdrawals"), &req, meta)
	if err != nil {
		return mapWithdrawalErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Withdrawal requested", Data: resp})
}

// Get returns the stored view of one withdrawal
func (h *WithdrawalHandler) Get(c fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid withdrawal ID", Error: dto.ErrorDetail{Code: "INVALID_WITHDRAWAL_ID"}})
	}
	resp, err := h.flow.GetWithdrawal(requestCtx(c, "/api/v1/withdrawals/"+c.Params("id")), uint(id))
	if err != nil {
		return mapWithdrawalErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Withdrawal", Data: resp})
}

// CheckStatus polls the processor for an in-flight payout before answering
func (h *WithdrawalHandler) CheckStatus(c fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid withdrawal ID", Error: dto.ErrorDetail{Code: "INVALID_WITHDRAWAL_ID"}})
	}
	meta := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	resp, err := h.flow.PollStatus(requestCtx(c, "/api/v1/withdrawals/"+c.Params("id")+"/check"), uint(id), meta)
	if err != nil {
		return mapWithdrawalErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Withdrawal status checked", Data: resp})
}

// List returns a user's withdrawals, newest first
func (h *WithdrawalHandler) List(c fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("userID"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid user ID", Error: dto.ErrorDetail{Code: "INVALID_USER_ID"}})
	}
	limit := fiber.Query(c, "limit", 50)
	offset := fiber.Query(c, "offset", 0)

	resp, err := h.flow.ListByUser(requestCtx(c, "/api/v1/users/withdrawals"), uint(userID), limit, offset)
	if err != nil {
		return mapWithdrawalErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Withdrawals", Data: resp})
}

// Ledger returns a user's settled withdrawals from the append-only ledger
func (h *WithdrawalHandler) Ledger(c fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("userID"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid user ID", Error: dto.ErrorDetail{Code: "INVALID_USER_ID"}})
	}
	limit := fiber.Query(c, "limit", 50)
	offset := fiber.Query(c, "offset", 0)

	resp, err := h.flow.ListLedgerByUser(requestCtx(c, "/api/v1/users/ledger"), uint(userID), limit, offset)
	if err != nil {
		return mapWithdrawalErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Ledger entries", Data: resp})
}

// AdminUpdate overrides a withdrawal's status; cancelling refunds the user
func (h *WithdrawalHandler) AdminUpdate(c fiber.Ctx) error {
	var req dto.UpdateWithdrawalRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid request body", Error: dto.ErrorDetail{Code: "INVALID_REQUEST"}})
	}
	if err := h.validator.Struct(&req); err != nil {
		return validationError(c, err)
	}

	meta := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	resp, err := h.flow.AdminUpdate(requestCtx(c, "/api/v1/admin/withdrawals"), &req, meta)
	if err != nil {
		return mapWithdrawalErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Withdrawal updated", Data: resp})
}

func mapWithdrawalErr(c fiber.Ctx, err error) error {
	switch {
	case businessflow.IsWithdrawalNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{Success: false, Message: "Withdrawal not found", Error: dto.ErrorDetail{Code: "WITHDRAWAL_NOT_FOUND"}})
	case businessflow.IsUserNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{Success: false, Message: "User not found", Error: dto.ErrorDetail{Code: "USER_NOT_FOUND"}})
	case businessflow.IsAmountTooLow(err):
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Amount too low", Error: dto.ErrorDetail{Code: "AMOUNT_TOO_LOW"}})
	case businessflow.IsAddressRequired(err):
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Payout address required", Error: dto.ErrorDetail{Code: "ADDRESS_REQUIRED"}})
	case businessflow.IsInsufficientFunds(err):
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Insufficient funds", Error: dto.ErrorDetail{Code: "INSUFFICIENT_FUNDS"}})
	case businessflow.IsTerminalStatus(err):
		return c.Status(fiber.StatusConflict).JSON(dto.APIResponse{Success: false, Message: "Withdrawal already finalized", Error: dto.ErrorDetail{Code: "TERMINAL_STATUS"}})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{Success: false, Message: "Withdrawal operation failed", Error: dto.ErrorDetail{Code: "WITHDRAWAL_OPERATION_FAILED", Details: err.Error()}})
	}
}

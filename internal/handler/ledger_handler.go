package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"kncbank/internal/domain"
	"kncbank/internal/errors"
	"kncbank/internal/service"
)

// LedgerHandler is the HTTP surface over the ledger engine. It parses
// and renders; every business decision lives in the service.
type LedgerHandler struct {
	ledgerService *service.LedgerService
}

func NewLedgerHandler(ledgerService *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
	}
}

type DepositRequest struct {
	Handle string `json:"username"`
	Amount string `json:"amount"`
}

type WithdrawRequest struct {
	Handle string `json:"username"`
	Amount string `json:"amount"`
}

type SendMoneyRequest struct {
	Sender         string  `json:"sender_username"`
	Recipient      string  `json:"recipient_username"`
	Amount         string  `json:"amount"`
	Note           *string `json:"notes,omitempty"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

type PayBillsRequest struct {
	Handle  string  `json:"username"`
	Company string  `json:"company_name"`
	Amount  string  `json:"amount"`
	Note    *string `json:"notes,omitempty"`
}

type OperationResponse struct {
	NewBalance string `json:"new_balance"`
	Reference  string `json:"reference_number"`
}

type BalanceResponse struct {
	Handle  string `json:"username"`
	Balance string `json:"balance"`
}

// TransactionSummary is one history row, with the timestamp split into
// display-ready date and time fields.
type TransactionSummary struct {
	Reference    string  `json:"reference_number"`
	Type         string  `json:"type"`
	Amount       string  `json:"amount"`
	Description  string  `json:"description"`
	Timestamp    string  `json:"timestamp"`
	Date         string  `json:"date"`
	Time         string  `json:"time"`
	Counterparty *string `json:"counterparty,omitempty"`
	Company      *string `json:"company,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

func parseAmount(raw string) (decimal.Decimal, *errors.AppError) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.NewAppError(errors.InvalidAmount, "invalid amount format").WithDetails(err.Error())
	}
	return amount, nil
}

func (h *LedgerHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	amount, appErr := parseAmount(req.Amount)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := h.ledgerService.Deposit(req.Handle, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, OperationResponse{
		NewBalance: result.NewBalance.StringFixed(2),
		Reference:  result.Reference,
	})
}

func (h *LedgerHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	amount, appErr := parseAmount(req.Amount)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := h.ledgerService.Withdraw(req.Handle, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, OperationResponse{
		NewBalance: result.NewBalance.StringFixed(2),
		Reference:  result.Reference,
	})
}

func (h *LedgerHandler) SendMoney(w http.ResponseWriter, r *http.Request) {
	var req SendMoneyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	amount, appErr := parseAmount(req.Amount)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	var idempotencyKey *uuid.UUID
	if req.IdempotencyKey != "" {
		key, err := uuid.Parse(req.IdempotencyKey)
		if err != nil {
			writeError(w, errors.NewAppError(errors.InvalidInput, "invalid idempotency_key format").WithDetails(err.Error()))
			return
		}
		idempotencyKey = &key
	}

	result, err := h.ledgerService.Transfer(req.Sender, req.Recipient, amount, req.Note, idempotencyKey)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, OperationResponse{
		NewBalance: result.NewBalance.StringFixed(2),
		Reference:  result.Reference,
	})
}

func (h *LedgerHandler) PayBills(w http.ResponseWriter, r *http.Request) {
	var req PayBillsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	amount, appErr := parseAmount(req.Amount)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := h.ledgerService.PayBill(req.Handle, req.Company, amount, req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, OperationResponse{
		NewBalance: result.NewBalance.StringFixed(2),
		Reference:  result.Reference,
	})
}

func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["username"]

	balance, err := h.ledgerService.GetBalance(handle)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{
		Handle:  handle,
		Balance: balance.StringFixed(2),
	})
}

func (h *LedgerHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["username"]

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, errors.NewAppError(errors.InvalidInput, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	transactions, err := h.ledgerService.ListTransactions(handle, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	summaries := make([]TransactionSummary, 0, len(transactions))
	for _, tx := range transactions {
		summaries = append(summaries, summarize(tx))
	}

	writeJSON(w, http.StatusOK, summaries)
}

func summarize(tx domain.Transaction) TransactionSummary {
	return TransactionSummary{
		Reference:    tx.Reference,
		Type:         string(tx.Type),
		Amount:       tx.Amount.StringFixed(2),
		Description:  tx.Description,
		Timestamp:    tx.CreatedAt.Format("01/02/2006 03:04 PM"),
		Date:         tx.CreatedAt.Format("01/02/2006"),
		Time:         tx.CreatedAt.Format("03:04 PM"),
		Counterparty: tx.Counterparty,
		Company:      tx.Company,
		Notes:        tx.Note,
	}
}

package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"kncbank/internal/errors"
	"kncbank/internal/service"
)

type AccountHandler struct {
	accountService *service.AccountService
}

func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

type SignupRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Handle    string `json:"username"`
	PIN       string `json:"pin"`
}

type LoginRequest struct {
	Handle string `json:"username"`
	PIN    string `json:"pin"`
}

type LoginResponse struct {
	Handle string `json:"username"`
	Token  string `json:"token"`
}

type ProfileResponse struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Handle    string `json:"username"`
	Balance   string `json:"balance"`
	CreatedAt string `json:"created_at"`
}

type UpdateProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (h *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	account, err := h.accountService.Signup(&service.SignupRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Handle:    req.Handle,
		PIN:       req.PIN,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message":  "account created successfully",
		"username": account.Handle,
	})
}

func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	token, err := h.accountService.Login(req.Handle, req.PIN)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Handle: req.Handle, Token: token})
}

func (h *AccountHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["username"]

	account, err := h.accountService.GetProfile(handle)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{
		FirstName: account.FirstName,
		LastName:  account.LastName,
		Email:     account.Email,
		Handle:    account.Handle,
		Balance:   account.Balance.StringFixed(2),
		CreatedAt: account.CreatedAt.Format("01/02/2006"),
	})
}

func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["username"]

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	account, err := h.accountService.UpdateProfile(handle, req.FirstName, req.LastName, req.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{
		FirstName: account.FirstName,
		LastName:  account.LastName,
		Email:     account.Email,
		Handle:    account.Handle,
		Balance:   account.Balance.StringFixed(2),
		CreatedAt: account.CreatedAt.Format("01/02/2006"),
	})
}

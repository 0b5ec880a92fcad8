package service

import (
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"kncbank/internal/auth"
	"kncbank/internal/domain"
	"kncbank/internal/errors"
)

// AccountService is identity glue around the ledger: signup, login and
// profile editing. It never moves money.
type AccountService struct {
	store  domain.Store
	tokens *auth.TokenIssuer
	logger *slog.Logger
}

func NewAccountService(store domain.Store, tokens *auth.TokenIssuer, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:  store,
		tokens: tokens,
		logger: logger,
	}
}

type SignupRequest struct {
	FirstName string
	LastName  string
	Email     string
	Handle    string
	PIN       string
}

func (s *AccountService) Signup(req *SignupRequest) (*domain.Account, error) {
	if req.Handle == "" || req.PIN == "" || req.Email == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "handle, email and PIN are required")
	}
	if strings.ContainsAny(req.Handle, " \t\n") {
		return nil, errors.NewAppError(errors.InvalidInput, "handle must not contain whitespace")
	}

	s.logger.Info("Creating account", "handle", req.Handle)

	hashedPIN, err := auth.HashPIN(req.PIN)
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to hash PIN").WithDetails(err.Error())
	}

	account := &domain.Account{
		Handle:    req.Handle,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		HashedPIN: hashedPIN,
		Balance:   decimal.Zero,
	}

	if err := s.store.Account().CreateAccount(account); err != nil {
		return nil, err
	}

	return account, nil
}

// Login checks the PIN and returns a session token. Lookup and hash
// failures report the same error so handles cannot be enumerated.
func (s *AccountService) Login(handle, pin string) (string, error) {
	account, err := s.store.Account().GetAccount(handle)
	if err != nil {
		if isCode(err, errors.AccountNotFound) {
			return "", errors.ErrInvalidCredentials
		}
		return "", err
	}

	if !auth.CheckPIN(account.HashedPIN, pin) {
		return "", errors.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(handle)
	if err != nil {
		return "", errors.NewAppError(errors.InternalError, "failed to issue token").WithDetails(err.Error())
	}

	s.logger.Info("Login successful", "handle", handle)
	return token, nil
}

func (s *AccountService) GetProfile(handle string) (*domain.Account, error) {
	return s.store.Account().GetAccount(handle)
}

func (s *AccountService) UpdateProfile(handle, firstName, lastName, email string) (*domain.Account, error) {
	if firstName == "" || lastName == "" || email == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "first name, last name and email are required")
	}

	if err := s.store.Account().UpdateProfile(handle, firstName, lastName, email); err != nil {
		return nil, err
	}

	s.logger.Info("Profile updated", "handle", handle)
	return s.store.Account().GetAccount(handle)
}

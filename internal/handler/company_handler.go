package handler

import (
	"encoding/json"
	"net/http"

	"kncbank/internal/errors"
	"kncbank/internal/service"
)

type CompanyHandler struct {
	companyService *service.CompanyService
}

func NewCompanyHandler(companyService *service.CompanyService) *CompanyHandler {
	return &CompanyHandler{
		companyService: companyService,
	}
}

type CreateCompanyRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type CompanyResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

func (h *CompanyHandler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var req CreateCompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	company, err := h.companyService.CreateCompany(req.Name, req.Category)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CompanyResponse{
		ID:       company.ID,
		Name:     company.Name,
		Category: company.Category,
	})
}

func (h *CompanyHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.companyService.ListCompanies()
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]CompanyResponse, 0, len(companies))
	for _, c := range companies {
		out = append(out, CompanyResponse{ID: c.ID, Name: c.Name, Category: c.Category})
	}

	writeJSON(w, http.StatusOK, out)
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"libraryapi/internal/book"
	"libraryapi/internal/circulation"
	"libraryapi/internal/httpx"
	"libraryapi/internal/loan"
	"libraryapi/internal/user"
)

// CirculationService is the narrow contract the transport layer calls into.
type CirculationService interface {
	BorrowBook(ctx context.Context, bookID, userID string, durationDays int, notes string) (loan.Record, error)
	ReturnBook(ctx context.Context, bookID, userID string, fine *decimal.Decimal, notes string, condition loan.Condition) (loan.Record, error)
	RenewBorrow(ctx context.Context, loanID string, additionalDays int, userID string) (loan.Record, error)
	CalculateFine(ctx context.Context, loanID string) (decimal.Decimal, error)
	CanUserBorrow(ctx context.Context, userID string) (bool, error)
	UserLoans(ctx context.Context, userID string, limit, offset int) ([]loan.Record, error)
	OverdueLoans(ctx context.Context, limit, offset int) ([]loan.Record, error)
}

type CirculationHandler struct {
	svc CirculationService
}

func NewCirculationHandler(svc CirculationService) *CirculationHandler {
	return &CirculationHandler{svc: svc}
}

type borrowRequest struct {
	BookID       string `json:"book_id" validate:"required"`
	UserID       string `json:"user_id" validate:"required"`
	DurationDays int    `json:"duration_days" validate:"required,gt=0"`
	Notes        string `json:"notes" validate:"max=500"`
}

type returnRequest struct {
	BookID     string           `json:"book_id" validate:"required"`
	UserID     string           `json:"user_id" validate:"required"`
	FineAmount *decimal.Decimal `json:"fine_amount"`
	Notes      string           `json:"notes" validate:"max=500"`
	Condition  string           `json:"condition" validate:"omitempty,loan_condition"`
}

type renewRequest struct {
	UserID         string `json:"user_id" validate:"required"`
	AdditionalDays int    `json:"additional_days" validate:"required,gt=0"`
}

// Borrow handles POST /loans.
func (h *CirculationHandler) Borrow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(r, w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", nil)
		return
	}
	if details := validationDetails(req); details != nil {
		httpx.JSONError(r, w, http.StatusBadRequest, "validation_failed", "invalid borrow request", details)
		return
	}

	rec, err := h.svc.BorrowBook(r.Context(), req.BookID, req.UserID, req.DurationDays, req.Notes)
	if err != nil {
		writeServiceError(r, w, err)
		return
	}
	httpx.JSONSuccessCreated(r, w, rec)
}

// Return handles POST /returns.
func (h *CirculationHandler) Return(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req returnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(r, w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", nil)
		return
	}
	if details := validationDetails(req); details != nil {
		httpx.JSONError(r, w, http.StatusBadRequest, "validation_failed", "invalid return request", details)
		return
	}
	if req.FineAmount != nil && req.FineAmount.IsNegative() {
		httpx.JSONError(r, w, http.StatusBadRequest, "validation_failed", "fine amount cannot be negative", nil)
		return
	}

	condition := loan.Condition(req.Condition)
	if req.Condition == "" {
		condition = loan.ConditionNone
	}

	rec, err := h.svc.ReturnBook(r.Context(), req.BookID, req.UserID, req.FineAmount, req.Notes, condition)
	if err != nil {
		writeServiceError(r, w, err)
		return
	}
	httpx.JSONSuccess(r, w, rec)
}

// Loans dispatches /loans/ subroutes:
//
//	GET  /loans/overdue
//	POST /loans/{id}/renew
//	GET  /loans/{id}/fine
func (h *CirculationHandler) Loans(w http.ResponseWriter, r *http.Request) {
	const prefix = "/loans/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)

	if rest == "overdue" {
		h.overdue(w, r)
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	loanID, action := parts[0], parts[1]

	switch action {
	case "renew":
		h.renew(w, r, loanID)
	case "fine":
		h.fine(w, r, loanID)
	default:
		http.NotFound(w, r)
	}
}

func (h *CirculationHandler) renew(w http.ResponseWriter, r *http.Request, loanID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req renewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(r, w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", nil)
		return
	}
	if details := validationDetails(req); details != nil {
		httpx.JSONError(r, w, http.StatusBadRequest, "validation_failed", "invalid renewal request", details)
		return
	}

	rec, err := h.svc.RenewBorrow(r.Context(), loanID, req.AdditionalDays, req.UserID)
	if err != nil {
		writeServiceError(r, w, err)
		return
	}
	httpx.JSONSuccess(r, w, rec)
}

func (h *CirculationHandler) fine(w http.ResponseWriter, r *http.Request, loanID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	fine, err := h.svc.CalculateFine(r.Context(), loanID)
	if err != nil {
		writeServiceError(r, w, err)
		return
	}
	httpx.JSONSuccess(r, w, map[string]any{"loan_id": loanID, "fine": fine})
}

func (h *CirculationHandler) overdue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit, offset := pagination(r)
	records, err := h.svc.OverdueLoans(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(r, w, err)
		return
	}
	httpx.JSONSuccess(r, w, records)
}

// Users dispatches /users/ subroutes:
//
//	GET /users/{id}/loans
//	GET /users/{id}/can-borrow
func (h *CirculationHandler) Users(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// crude path param extraction with net/http's ServeMux
	const prefix = "/users/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	userID, action := parts[0], parts[1]

	switch action {
	case "loans":
		h.userLoans(w, r, userID)
	case "can-borrow":
		h.canBorrow(w, r, userID)
	default:
		http.NotFound(w, r)
	}
}

func (h *CirculationHandler) userLoans(w http.ResponseWriter, r *http.Request, userID string) {
	limit, offset := pagination(r)
	records, err := h.svc.UserLoans(r.Context(), userID, limit, offset)
	if err != nil {
		writeServiceError(r, w, err)
		return
	}
	httpx.JSONSuccess(r, w, records)
}

func (h *CirculationHandler) canBorrow(w http.ResponseWriter, r *http.Request, userID string) {
	eligible, err := h.svc.CanUserBorrow(r.Context(), userID)
	if err != nil {
		writeServiceError(r, w, err)
		return
	}
	httpx.JSONSuccess(r, w, map[string]any{"user_id": userID, "can_borrow": eligible})
}

func pagination(r *http.Request) (limit, offset int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return pageSize, (page - 1) * pageSize
}

func validationDetails(req interface{}) []httpx.ErrorDetail {
	errs := ValidateStruct(req)
	if errs == nil {
		return nil
	}
	details := make([]httpx.ErrorDetail, len(errs))
	for i, e := range errs {
		details[i] = httpx.ErrorDetail{Field: e.Field, Message: e.Message}
	}
	return details
}

func writeServiceError(r *http.Request, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, circulation.ErrUserIneligible):
		httpx.JSONError(r, w, http.StatusForbidden, "user_ineligible", "user is missing or deactivated", nil)
	case errors.Is(err, circulation.ErrNotOwner):
		httpx.JSONError(r, w, http.StatusForbidden, "not_owner", "loan belongs to another user", nil)
	case errors.Is(err, circulation.ErrDuplicateLoan):
		httpx.JSONError(r, w, http.StatusConflict, "duplicate_loan", "user already has an open loan for this book", nil)
	case errors.Is(err, circulation.ErrNoCopiesAvailable):
		httpx.JSONError(r, w, http.StatusConflict, "no_copies_available", "no copies available", nil)
	case errors.Is(err, circulation.ErrNoCopiesForRenewal):
		httpx.JSONError(r, w, http.StatusConflict, "no_copies_for_renewal", "no copies available for renewal", nil)
	case errors.Is(err, circulation.ErrCommitFailed):
		httpx.JSONError(r, w, http.StatusConflict, "commit_failed", "the operation lost a write conflict, retry", nil)
	case errors.Is(err, loan.ErrAlreadyReturned):
		httpx.JSONError(r, w, http.StatusConflict, "already_returned", "loan is already returned", nil)
	case errors.Is(err, circulation.ErrBorrowLimitExceeded):
		httpx.JSONError(r, w, http.StatusUnprocessableEntity, "borrow_limit_exceeded", "active loan limit reached", nil)
	case errors.Is(err, circulation.ErrHasOverdueLoans):
		httpx.JSONError(r, w, http.StatusUnprocessableEntity, "has_overdue_loans", "overdue loans block new borrowing", nil)
	case errors.Is(err, circulation.ErrOverdue):
		httpx.JSONError(r, w, http.StatusUnprocessableEntity, "loan_overdue", "overdue loan must be returned first", nil)
	case errors.Is(err, circulation.ErrRenewalLimitReached):
		httpx.JSONError(r, w, http.StatusUnprocessableEntity, "renewal_limit_reached", "renewal limit reached", nil)
	case errors.Is(err, circulation.ErrInvalidDuration),
		errors.Is(err, loan.ErrInvalidDuration),
		errors.Is(err, loan.ErrInvalidDueDate),
		errors.Is(err, loan.ErrMissingUser):
		httpx.JSONError(r, w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
	case errors.Is(err, circulation.ErrNoActiveLoan):
		httpx.JSONError(r, w, http.StatusNotFound, "no_active_loan", "no active loan for this book and user", nil)
	case errors.Is(err, loan.ErrNotFound), errors.Is(err, book.ErrNotFound), errors.Is(err, user.ErrNotFound):
		httpx.JSONError(r, w, http.StatusNotFound, "not_found", err.Error(), nil)
	default:
		httpx.JSONError(r, w, http.StatusInternalServerError, "internal_error", "server error", nil)
	}
}

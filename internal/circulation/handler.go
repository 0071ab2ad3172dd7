package circulation

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bookcircle/internal/httpapi"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the loan endpoints. All of them need an acting user.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/holdings/{id}/requests", h.handleRequestLoan)
	r.Post("/loans/{id}/actions", h.handleApplyAction)
	r.Get("/loans/{id}/history", h.handleHistory)
	r.Get("/lendings", h.handleLendings)
	r.Get("/borrowings", h.handleBorrowings)
}

func (h *Handler) handleRequestLoan(w http.ResponseWriter, r *http.Request) {
	borrowerID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusUnauthorized, err)
		return
	}
	holdingID, err := httpapi.URLID(r, "id")
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, errors.New("invalid holding ID"))
		return
	}

	loan, err := h.service.RequestLoan(r.Context(), borrowerID, holdingID)
	if err != nil {
		httpapi.WriteError(w, statusFor(err), err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, loan)
}

func (h *Handler) handleApplyAction(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusUnauthorized, err)
		return
	}
	loanID, err := httpapi.URLID(r, "id")
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, errors.New("invalid loan ID"))
		return
	}

	var req struct {
		Action Action `json:"action"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}

	loan, err := h.service.ApplyAction(r.Context(), actorID, loanID, req.Action)
	if err != nil {
		httpapi.WriteError(w, statusFor(err), err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, loan)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusUnauthorized, err)
		return
	}
	loanID, err := httpapi.URLID(r, "id")
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, errors.New("invalid loan ID"))
		return
	}

	history, err := h.service.GetLoanHistory(r.Context(), actorID, loanID)
	if err != nil {
		httpapi.WriteError(w, statusFor(err), err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, history)
}

func (h *Handler) handleLendings(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusUnauthorized, err)
		return
	}

	statuses, err := statusFilter(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}

	listing, err := h.service.GetUserLendings(r.Context(), userID, statuses...)
	if err != nil {
		httpapi.WriteError(w, statusFor(err), err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, listing)
}

func (h *Handler) handleBorrowings(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusUnauthorized, err)
		return
	}

	statuses, err := statusFilter(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}

	listing, err := h.service.GetUserBorrowings(r.Context(), userID, statuses...)
	if err != nil {
		httpapi.WriteError(w, statusFor(err), err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, listing)
}

// statusFilter reads repeated or comma separated status query parameters.
func statusFilter(r *http.Request) ([]Status, error) {
	var statuses []Status
	for _, value := range r.URL.Query()["status"] {
		for _, name := range strings.Split(value, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			st, err := ParseStatus(name)
			if err != nil {
				return nil, err
			}
			statuses = append(statuses, st)
		}
	}
	return statuses, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAction), errors.Is(err, ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrHoldingUnavailable),
		errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

package catalog

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bookcircle/internal/httpapi"
	"bookcircle/internal/membership"
)

// ScopeResolver returns the visibility scope of a viewer.
type ScopeResolver interface {
	VisibleScope(ctx context.Context, viewerID uuid.UUID) (membership.Scope, error)
}

type Handler struct {
	service Service
	scopes  ScopeResolver
}

func NewHandler(service Service, scopes ScopeResolver) *Handler {
	return &Handler{service: service, scopes: scopes}
}

// Routes mounts the catalog endpoints. All of them need an acting user.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/library", h.handleLibrary)
	r.Post("/holdings", h.handleAddHolding)
	r.Delete("/holdings/{id}", h.handleRemoveHolding)
	r.Post("/categories", h.handleCategories)
}

func (h *Handler) handleLibrary(w http.ResponseWriter, r *http.Request) {
	viewerID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusUnauthorized, err)
		return
	}

	scope, err := h.scopes.VisibleScope(r.Context(), viewerID)
	if err != nil {
		if errors.Is(err, membership.ErrUserNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, err)
			return
		}
		httpapi.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	lib, err := h.service.Library(r.Context(), scope)
	if err != nil {
		httpapi.WriteError(w, statusFor(err), err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, lib)
}

func (h *Handler) handleAddHolding(w http.ResponseWriter, r *http.Request) {
	ownerID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusUnauthorized, err)
		return
	}

	var req struct {
		BookID uuid.UUID `json:"book_id"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}

	holding, err := h.service.AddHolding(r.Context(), ownerID, req.BookID)
	if err != nil {
		httpapi.WriteError(w, statusFor(err), err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, holding)
}

func (h *Handler) handleRemoveHolding(w http.ResponseWriter, r *http.Request) {
	ownerID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusUnauthorized, err)
		return
	}
	holdingID, err := httpapi.URLID(r, "id")
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, errors.New("invalid holding ID"))
		return
	}

	if err := h.service.RemoveHolding(r.Context(), ownerID, holdingID); err != nil {
		httpapi.WriteError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCategories resolves names to categories, creating missing ones.
func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Names []string `json:"names"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if len(CleanCategoryNames(req.Names)) == 0 {
		httpapi.WriteError(w, http.StatusBadRequest, errors.New("at least one category name is required"))
		return
	}

	categories, err := h.service.FindOrCreateCategories(r.Context(), req.Names)
	if err != nil {
		httpapi.WriteError(w, statusFor(err), err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, categories)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBookNotFound), errors.Is(err, ErrHoldingNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, ErrDuplicateISBN), errors.Is(err, ErrHoldingOnLoan):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidBook):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

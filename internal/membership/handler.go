package membership

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bookcircle/internal/httpapi"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the membership endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/users", h.handleCreateUser)
	r.Get("/users/{id}", h.handleGetUser)
	r.Post("/circles", h.handleCreateCircle)
	r.Post("/circles/{id}/members", h.handleJoinCircle)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		IsAdmin   bool   `json:"is_admin"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), req.Email, req.FirstName, req.LastName, req.IsAdmin)
	if err != nil {
		httpapi.WriteError(w, statusFor(err), err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.URLID(r, "id")
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, errors.New("invalid user ID"))
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, statusFor(err), err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) handleCreateCircle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}

	circle, err := h.service.CreateCircle(r.Context(), req.Name)
	if err != nil {
		httpapi.WriteError(w, statusFor(err), err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, circle)
}

func (h *Handler) handleJoinCircle(w http.ResponseWriter, r *http.Request) {
	circleID, err := httpapi.URLID(r, "id")
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, errors.New("invalid circle ID"))
		return
	}
	userID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusUnauthorized, err)
		return
	}

	if err := h.service.JoinCircle(r.Context(), circleID, userID); err != nil {
		httpapi.WriteError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrCircleNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

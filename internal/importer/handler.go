package importer

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bookcircle/internal/catalog"
	"bookcircle/internal/httpapi"
)

type Handler struct {
	importer *Importer
}

func NewHandler(importer *Importer) *Handler {
	return &Handler{importer: importer}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/isbn/{isbn}", h.handleLookup)
	r.Post("/books/{id}/cover", h.handleBackfillCover)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	book, err := h.importer.Import(r.Context(), chi.URLParam(r, "isbn"))
	if err != nil {
		httpapi.WriteError(w, statusFor(err), err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleBackfillCover(w http.ResponseWriter, r *http.Request) {
	bookID, err := httpapi.URLID(r, "id")
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, errors.New("invalid book ID"))
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}

	book, err := h.importer.BackfillCover(r.Context(), bookID, req.URL)
	if err != nil {
		httpapi.WriteError(w, statusFor(err), err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, book)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBookNotFound), errors.Is(err, catalog.ErrBookNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidISBN), errors.Is(err, ErrInvalidCoverURL):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoData), errors.Is(err, ErrSourceUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

package discount

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/discount-calculator/internal/common"
	"github.com/noah-isme/discount-calculator/internal/pricing"
)

// Handler exposes rule management and evaluation endpoints.
type Handler struct {
	Service *Service
	// Admin guards create and delete. Nil leaves them open.
	Admin func(http.Handler) http.Handler
	// EvaluateLimit throttles the evaluation endpoint. Nil disables it.
	EvaluateLimit func(http.Handler) http.Handler
}

// Routes mounts the discount endpoints, typically under /api/v1/discounts.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{discountId}", h.Get)
	r.With(optional(h.EvaluateLimit)).Post("/best", h.Best)
	r.Group(func(admin chi.Router) {
		admin.Use(optional(h.Admin))
		admin.Post("/", h.Create)
		admin.Post("/add", h.Create)
		admin.Delete("/{discountId}", h.Delete)
	})
	return r
}

func optional(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw != nil {
		return mw
	}
	return func(next http.Handler) http.Handler { return next }
}

// Create handles POST /api/v1/discounts.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount service not configured", nil)
		return
	}
	var dto RuleDTO
	if err := common.DecodeJSON(r, &dto); err != nil {
		writeError(w, err)
		return
	}
	rule, err := RuleFromDTO(dto)
	if err != nil {
		writeError(w, err)
		return
	}
	saved, err := h.Service.Create(r.Context(), rule)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, ToDTO(saved))
}

// List handles GET /api/v1/discounts.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount service not configured", nil)
		return
	}
	rules, err := h.Service.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, ToDTOs(rules))
}

// Get handles GET /api/v1/discounts/{discountId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount service not configured", nil)
		return
	}
	rule, err := h.Service.Get(r.Context(), chi.URLParam(r, "discountId"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, ToDTO(rule))
}

// Delete handles DELETE /api/v1/discounts/{discountId}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount service not configured", nil)
		return
	}
	if err := h.Service.Delete(r.Context(), chi.URLParam(r, "discountId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Best handles POST /api/v1/discounts/best.
func (h *Handler) Best(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount service not configured", nil)
		return
	}
	var dto CartDTO
	if err := common.DecodeJSON(r, &dto); err != nil {
		writeError(w, err)
		return
	}
	cart, err := CartFromDTO(dto)
	if err != nil {
		writeError(w, err)
		return
	}
	outcome, err := h.Service.BestFor(r.Context(), cart)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, outcome)
}

func writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, toAppError(err))
}

func toAppError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return common.NewAppError("PAYLOAD_TOO_LARGE", "request body too large", http.StatusRequestEntityTooLarge, err)
	case common.IsAppError(err):
		return err
	case errors.Is(err, ErrNotFound):
		return common.NewAppError("NOT_FOUND", "discount not found", http.StatusNotFound, err)
	case errors.Is(err, ErrAlreadyExists):
		return common.NewAppError("CONFLICT", "discount with this id already exists", http.StatusConflict, err)
	case errors.Is(err, ErrInvalidRule):
		return common.NewValidationError("invalid discount rule", err, nil)
	case errors.Is(err, pricing.ErrInvalidCart):
		return common.NewValidationError("invalid cart", err, nil)
	default:
		return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
	}
}

package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/picklane/picklane/internal/platform/httpx"
)

// Handler wires the JSON API for the allocation engine.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes on the given router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/count", h.handleCount)
	r.Get("/sell", h.handleSell)
	r.Get("/products", h.handleListProducts)
	r.Post("/products", h.handleIngest)
	r.Delete("/products/{id}", h.handleDeleteProduct)
	r.Post("/products/bulk-delete", h.handleBulkDelete)
	r.Get("/stats", h.handleStats)
}

type countResponse struct {
	Sum int64 `json:"sum"`
}

type soldProduct struct {
	Product string `json:"product"`
}

type sellResponse struct {
	Products []soldProduct `json:"products"`
}

type ingestRequest struct {
	Products    string `json:"products" validate:"required"`
	InventoryID *int64 `json:"inventory_id" validate:"omitempty,min=1"`
}

type ingestResponse struct {
	Success  bool     `json:"success"`
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

type bulkDeleteRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,min=1"`
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	scopeID, err := scopeFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sum, err := h.service.GetCount(r.Context(), scopeID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, countResponse{Sum: sum})
}

func (h *Handler) handleSell(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scopeID, err := scopeFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	quantity, err := strconv.Atoi(q.Get("quantity"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantity must be a number")
		return
	}

	names, err := h.service.Sell(r.Context(), SellInput{
		ScopeID:  scopeID,
		OrderID:  q.Get("order_id"),
		Quantity: quantity,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	products := make([]soldProduct, len(names))
	for i, name := range names {
		products[i] = soldProduct{Product: name}
	}
	httpx.JSON(w, http.StatusOK, sellResponse{Products: products})
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "products data is required")
		return
	}

	result, err := h.service.Ingest(r.Context(), IngestInput{
		ScopeID: req.InventoryID,
		Lines:   req.Products,
	})
	if err != nil {
		if errors.Is(err, ErrNoValidProducts) && len(result.Errors) > 0 {
			httpx.ProblemWithDetails(w, http.StatusBadRequest, "Validation Failed",
				"No valid products to insert", result.Errors)
			return
		}
		h.respondError(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusOK, ingestResponse{
		Success:  true,
		Inserted: result.Inserted,
		Skipped:  result.Skipped,
		Errors:   result.Errors,
	})
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "deleted": id})
}

func (h *Handler) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product ids array is required")
		return
	}
	deleted, err := h.service.DeleteProducts(r.Context(), req.IDs)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	scopeID, err := scopeFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	filter := ProductFilter{ScopeID: scopeID}
	switch r.URL.Query().Get("status") {
	case "available":
		sold := false
		filter.Sold = &sold
	case "sold":
		sold := true
		filter.Sold = &sold
	case "":
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "status must be available or sold")
		return
	}

	page := intQueryParam(r, "page", 1)
	perPage := intQueryParam(r, "per_page", 50)

	products, pagination, err := h.service.ListProducts(r.Context(), filter, page, perPage)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products, "pagination": pagination})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	scopeID, err := scopeFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	report, err := h.service.GetStats(r.Context(), scopeID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"stats": map[string]int64{
			"total":     report.Stats.Total,
			"available": report.Stats.Available,
			"sold":      report.Stats.Sold,
		},
		"recentUploads": report.RecentUploads,
		"recentSales":   report.RecentSales,
	})
}

// respondError translates engine outcomes into HTTP statuses: validation and
// insufficiency are 400, a dry pool and missing products are 404, everything
// else is a logged 500.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *ValidationError
	var insufficientErr *InsufficientStockError
	var batchErr *BatchTooLargeError
	switch {
	case errors.As(err, &validationErr):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationErr.Reason)
	case errors.As(err, &batchErr):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("Too many items. Maximum %d allowed, got %d", batchErr.Limit, batchErr.Count))
	case errors.As(err, &insufficientErr):
		httpx.Problem(w, http.StatusBadRequest, "Insufficient Stock", fmt.Sprintf("Insufficient stock. Only %d products available", insufficientErr.Available))
	case errors.Is(err, ErrNoStock):
		httpx.Problem(w, http.StatusNotFound, "No Stock", "No products available")
	case errors.Is(err, ErrNoValidProducts):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "No valid products to insert")
	case errors.Is(err, ErrScopeNotFound):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Unknown inventory")
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "Product not found")
	default:
		h.logger.Error("inventory request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func intQueryParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func scopeFromQuery(r *http.Request) (*int64, error) {
	raw := r.URL.Query().Get("inventory_id")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return nil, errors.New("inventory_id must be a positive number")
	}
	return &id, nil
}

package transport

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/ngasani/shadeview/internal/catalog"
	"github.com/ngasani/shadeview/internal/observability"
	"github.com/ngasani/shadeview/model"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

func handleAddCompany(store *catalog.Store, metrics *observability.Metrics) http.HandlerFunc {
	type companyRequest struct {
		Name string `json:"name"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := productTypeParam(r)
		if !ok {
			WriteValidationError(w, []model.FieldError{{Field: "product_type", Message: "unknown product type"}})
			return
		}
		var req companyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if req.Name == "" {
			WriteValidationError(w, []model.FieldError{{Field: "name", Message: "name is required"}})
			return
		}

		company, err := store.AddCompany(t, req.Name)
		if err != nil {
			recordWrite(metrics, "company", "error")
			WriteError(w, err)
			return
		}
		recordWrite(metrics, "company", "ok")
		WriteJSON(w, http.StatusCreated, company)
	}
}

func handleAddProduct(store *catalog.Store, metrics *observability.Metrics) http.HandlerFunc {
	type productRequest struct {
		Name string `json:"name"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := productTypeParam(r)
		if !ok {
			WriteValidationError(w, []model.FieldError{{Field: "product_type", Message: "unknown product type"}})
			return
		}
		var req productRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if req.Name == "" {
			WriteValidationError(w, []model.FieldError{{Field: "name", Message: "name is required"}})
			return
		}

		product, err := store.AddProduct(t, chi.URLParam(r, "companyId"), req.Name)
		if err != nil {
			recordWrite(metrics, "product", "error")
			WriteError(w, err)
			return
		}
		recordWrite(metrics, "product", "ok")
		WriteJSON(w, http.StatusCreated, product)
	}
}

func handleAddColor(store *catalog.Store, metrics *observability.Metrics) http.HandlerFunc {
	type colorRequest struct {
		Name string `json:"name"`
		Hex  string `json:"hex"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := productTypeParam(r)
		if !ok {
			WriteValidationError(w, []model.FieldError{{Field: "product_type", Message: "unknown product type"}})
			return
		}
		var req colorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		var details []model.FieldError
		if req.Name == "" {
			details = append(details, model.FieldError{Field: "name", Message: "name is required"})
		}
		if !hexColorPattern.MatchString(req.Hex) {
			details = append(details, model.FieldError{Field: "hex", Message: "hex must look like #RRGGBB"})
		}
		if len(details) > 0 {
			WriteValidationError(w, details)
			return
		}

		color, err := store.AddColor(t, chi.URLParam(r, "companyId"), chi.URLParam(r, "productId"), req.Name, req.Hex)
		if err != nil {
			recordWrite(metrics, "color", "error")
			WriteError(w, err)
			return
		}
		recordWrite(metrics, "color", "ok")
		WriteJSON(w, http.StatusCreated, color)
	}
}

func recordWrite(metrics *observability.Metrics, entity, status string) {
	if metrics != nil {
		metrics.RecordCatalogWrite(entity, status)
	}
}

package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ngasani/shadeview/internal/catalog"
	"github.com/ngasani/shadeview/model"
)

// handleGetCatalog returns the full catalog snapshot, or a single product
// type bucket when the product_type query parameter is set.
func handleGetCatalog(store *catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := store.Snapshot()

		if raw := r.URL.Query().Get("product_type"); raw != "" {
			t := model.ProductType(raw)
			if !t.Valid() {
				WriteValidationError(w, []model.FieldError{{Field: "product_type", Message: "unknown product type"}})
				return
			}
			type bucketResponse struct {
				ProductType model.ProductType     `json:"product_type"`
				Companies   []model.FabricCompany `json:"companies"`
			}
			WriteJSON(w, http.StatusOK, bucketResponse{
				ProductType: t,
				Companies:   snapshot.Companies(t),
			})
			return
		}

		WriteJSON(w, http.StatusOK, snapshot)
	}
}

// handleGetProductTypes lists the supported product types in display order.
func handleGetProductTypes() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type typesResponse struct {
			ProductTypes []model.ProductType `json:"product_types"`
		}
		WriteJSON(w, http.StatusOK, typesResponse{ProductTypes: model.ProductTypes})
	}
}

// productTypeParam parses the productType URL parameter.
func productTypeParam(r *http.Request) (model.ProductType, bool) {
	t := model.ProductType(chi.URLParam(r, "productType"))
	return t, t.Valid()
}

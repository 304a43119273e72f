package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngasani/shadeview/model"
)

// TestAdminCatalogWrites verifies the authenticated catalog admin flow:
// create a company, a product under it, and a color under the product, then
// observe the additions in the public catalog.
func TestAdminCatalogWrites(t *testing.T) {
	h := NewTestHarness(t)
	token := h.AdminToken()

	var company model.FabricCompany
	h.AssertJSON(t, h.POSTAuth("/admin/catalog/curtains/companies", map[string]any{
		"name": "Nordic Weave",
	}, token), http.StatusCreated, &company)
	require.NotEmpty(t, company.ID)
	assert.Equal(t, "Nordic Weave", company.Name)

	var product model.Product
	h.AssertJSON(t, h.POSTAuth("/admin/catalog/curtains/companies/"+company.ID+"/products", map[string]any{
		"name": "Fjord Linen",
	}, token), http.StatusCreated, &product)
	require.NotEmpty(t, product.ID)

	var color model.Color
	h.AssertJSON(t, h.POSTAuth(
		"/admin/catalog/curtains/companies/"+company.ID+"/products/"+product.ID+"/colors",
		map[string]any{"name": "Glacier Blue", "hex": "#A5C8E1"},
		token,
	), http.StatusCreated, &color)
	assert.Equal(t, "#A5C8E1", color.Hex)

	var bucket struct {
		Companies []model.FabricCompany `json:"companies"`
	}
	h.AssertJSON(t, h.GET("/ui/catalog?product_type=curtains"), http.StatusOK, &bucket)
	require.Len(t, bucket.Companies, 3)

	var added *model.FabricCompany
	for i := range bucket.Companies {
		if bucket.Companies[i].ID == company.ID {
			added = &bucket.Companies[i]
		}
	}
	require.NotNil(t, added)
	require.Len(t, added.Products, 1)
	require.Len(t, added.Products[0].Colors, 1)
	assert.Equal(t, "Glacier Blue", added.Products[0].Colors[0].Name)
}

// TestAdminCatalogValidation covers admin write validation failures.
func TestAdminCatalogValidation(t *testing.T) {
	h := NewTestHarness(t)
	token := h.AdminToken()

	// Missing name.
	resp := h.POSTAuth("/admin/catalog/curtains/companies", map[string]any{}, token)
	h.AssertStatus(t, resp, http.StatusUnprocessableEntity)

	// Unknown product type.
	resp = h.POSTAuth("/admin/catalog/shutters/companies", map[string]any{
		"name": "Shutter Co",
	}, token)
	h.AssertStatus(t, resp, http.StatusUnprocessableEntity)

	// Malformed hex code.
	resp = h.POSTAuth(
		"/admin/catalog/curtains/companies/drapery-dreams/products/velvet-luxe/colors",
		map[string]any{"name": "Oddball", "hex": "red"},
		token,
	)
	h.AssertStatus(t, resp, http.StatusUnprocessableEntity)

	// Color under a product that does not exist.
	resp = h.POSTAuth(
		"/admin/catalog/curtains/companies/drapery-dreams/products/no-such-product/colors",
		map[string]any{"name": "Ghost", "hex": "#000000"},
		token,
	)
	h.AssertStatus(t, resp, http.StatusNotFound)
}

// TestAdminCatalogAuth verifies the JWT gate on admin routes.
func TestAdminCatalogAuth(t *testing.T) {
	h := NewTestHarness(t)

	body := map[string]any{"name": "No Auth Co"}

	// No token.
	resp := h.POST("/admin/catalog/curtains/companies", body)
	h.AssertStatus(t, resp, http.StatusUnauthorized)

	// Expired token.
	resp = h.POSTAuth("/admin/catalog/curtains/companies", body, h.ExpiredAdminToken())
	h.AssertStatus(t, resp, http.StatusUnauthorized)

	// Garbage token.
	resp = h.POSTAuth("/admin/catalog/curtains/companies", body, "not-a-jwt")
	h.AssertStatus(t, resp, http.StatusUnauthorized)

	// A verified token without the catalog admin scope is forbidden.
	resp = h.POSTAuth("/admin/catalog/curtains/companies", body, h.ReadOnlyToken())
	h.AssertStatus(t, resp, http.StatusForbidden)

	// A valid token works and nothing leaked through earlier.
	var company model.FabricCompany
	h.AssertJSON(t, h.POSTAuth("/admin/catalog/curtains/companies", body, h.AdminToken()),
		http.StatusCreated, &company)

	var bucket struct {
		Companies []model.FabricCompany `json:"companies"`
	}
	h.AssertJSON(t, h.GET("/ui/catalog?product_type=curtains"), http.StatusOK, &bucket)
	assert.Len(t, bucket.Companies, 3)
}

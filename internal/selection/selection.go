// Package selection maintains the manual configuration cursor into the
// catalog and enforces the cascade invariant: the company/product/color
// triple is always a valid root-to-leaf path, or absent when the product
// type bucket is empty.
package selection

import (
	"fmt"

	"github.com/ngasani/shadeview/model"
)

// Intent is a closed union of selection changes. Each intent carries its own
// cascade rule, so the compiler's type switch keeps the cases exhaustive
// instead of dispatching on a field name.
type Intent interface {
	isIntent()
}

// ChooseCompany selects a fabric company; the product and color reset to the
// new company's first product and that product's first color.
type ChooseCompany struct {
	CompanyID string
}

// ChooseProduct selects a product under the current company; the color
// resets to the new product's first color.
type ChooseProduct struct {
	ProductID string
}

// ChooseColor selects a color under the current product; nothing cascades.
type ChooseColor struct {
	ColorID string
}

func (ChooseCompany) isIntent() {}
func (ChooseProduct) isIntent() {}
func (ChooseColor) isIntent()   {}

// Init builds the initial selection for a product type: the first company,
// its first product, and that product's first color, all at index 0. Returns
// nil when the bucket holds no complete company/product/color path.
func Init(cat *model.Catalog, t model.ProductType) *model.ManualSelection {
	companies := cat.Companies(t)
	if len(companies) == 0 {
		return nil
	}
	first := companies[0]
	if len(first.Products) == 0 || len(first.Products[0].Colors) == 0 {
		// A seeded bucket always has a full path; admin-created entries may
		// not yet, and the configuration panel shows no swatches for them.
		return nil
	}
	return &model.ManualSelection{
		CompanyID: first.ID,
		ProductID: first.Products[0].ID,
		ColorID:   first.Products[0].Colors[0].ID,
	}
}

// Apply executes one intent against the current selection and returns the
// new triple. The new value must reference an existing child of its parent;
// a dangling reference is a programming error in the caller (the UI only
// offers valid choices) and is reported as an error rather than repaired.
func Apply(cat *model.Catalog, t model.ProductType, sel model.ManualSelection, intent Intent) (model.ManualSelection, error) {
	switch in := intent.(type) {
	case ChooseCompany:
		company := cat.FindCompany(t, in.CompanyID)
		if company == nil {
			return sel, fmt.Errorf("selection: company %q not in catalog bucket %q", in.CompanyID, t)
		}
		next := model.ManualSelection{CompanyID: company.ID}
		if len(company.Products) > 0 {
			next.ProductID = company.Products[0].ID
			if len(company.Products[0].Colors) > 0 {
				next.ColorID = company.Products[0].Colors[0].ID
			}
		}
		return next, nil

	case ChooseProduct:
		company := cat.FindCompany(t, sel.CompanyID)
		if company == nil {
			return sel, fmt.Errorf("selection: current company %q not in catalog bucket %q", sel.CompanyID, t)
		}
		product := company.FindProduct(in.ProductID)
		if product == nil {
			return sel, fmt.Errorf("selection: product %q not under company %q", in.ProductID, company.ID)
		}
		next := model.ManualSelection{CompanyID: company.ID, ProductID: product.ID}
		if len(product.Colors) > 0 {
			next.ColorID = product.Colors[0].ID
		}
		return next, nil

	case ChooseColor:
		company := cat.FindCompany(t, sel.CompanyID)
		if company == nil {
			return sel, fmt.Errorf("selection: current company %q not in catalog bucket %q", sel.CompanyID, t)
		}
		product := company.FindProduct(sel.ProductID)
		if product == nil {
			return sel, fmt.Errorf("selection: current product %q not under company %q", sel.ProductID, company.ID)
		}
		if product.FindColor(in.ColorID) == nil {
			return sel, fmt.Errorf("selection: color %q not under product %q", in.ColorID, product.ID)
		}
		return model.ManualSelection{
			CompanyID: sel.CompanyID,
			ProductID: sel.ProductID,
			ColorID:   in.ColorID,
		}, nil

	default:
		return sel, fmt.Errorf("selection: unknown intent %T", intent)
	}
}

// Resolved holds the concrete catalog entries a selection points at.
type Resolved struct {
	Company model.FabricCompany
	Product model.Product
	Color   model.Color
}

// Resolve dereferences a selection against a catalog snapshot. A selection
// that no longer resolves (the snapshot moved underneath it) is a
// recoverable validation failure, not a crash.
func Resolve(cat *model.Catalog, t model.ProductType, sel *model.ManualSelection) (Resolved, error) {
	if sel == nil {
		return Resolved{}, model.NewValidationError([]model.FieldError{
			{Field: "selection", Code: "missing", Message: "no fabric selection for this product type"},
		})
	}
	company := cat.FindCompany(t, sel.CompanyID)
	if company == nil {
		return Resolved{}, model.NewValidationError([]model.FieldError{
			{Field: "company_id", Code: "unresolved", Message: "selected company is no longer in the catalog"},
		})
	}
	product := company.FindProduct(sel.ProductID)
	if product == nil {
		return Resolved{}, model.NewValidationError([]model.FieldError{
			{Field: "product_id", Code: "unresolved", Message: "selected product is no longer in the catalog"},
		})
	}
	color := product.FindColor(sel.ColorID)
	if color == nil {
		return Resolved{}, model.NewValidationError([]model.FieldError{
			{Field: "color_id", Code: "unresolved", Message: "selected color is no longer in the catalog"},
		})
	}
	return Resolved{Company: *company, Product: *product, Color: *color}, nil
}

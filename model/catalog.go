package model

// ProductType identifies one of the supported window covering categories.
// The set is closed; new categories require a code change.
type ProductType string

const (
	ProductTypeVerticalBlinds ProductType = "vertical_blinds"
	ProductTypeRollerBlinds   ProductType = "roller_blinds"
	ProductTypeCurtains       ProductType = "curtains"
)

// ProductTypes lists all product types in display order.
var ProductTypes = []ProductType{
	ProductTypeVerticalBlinds,
	ProductTypeRollerBlinds,
	ProductTypeCurtains,
}

// Valid reports whether t is one of the known product types.
func (t ProductType) Valid() bool {
	switch t {
	case ProductTypeVerticalBlinds, ProductTypeRollerBlinds, ProductTypeCurtains:
		return true
	}
	return false
}

// CurtainStyle selects the heading style for curtain composites. It is
// meaningful only when the product type is curtains.
type CurtainStyle string

const (
	CurtainStyleSWave      CurtainStyle = "s_wave"
	CurtainStylePinchPleat CurtainStyle = "pinch_pleat"
)

// Valid reports whether s is one of the known curtain styles.
func (s CurtainStyle) Valid() bool {
	return s == CurtainStyleSWave || s == CurtainStylePinchPleat
}

// Color is a single fabric color swatch. Immutable once created; its ID is
// unique within the owning product.
type Color struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Hex  string `json:"hex" yaml:"hex"`
}

// Product is a fabric line offered by a company. Colors keep their insertion
// order; a product created through the admin path starts with no colors.
type Product struct {
	ID     string  `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	Colors []Color `json:"colors" yaml:"colors"`
}

// FabricCompany groups the products of one supplier within a product type
// bucket. Products keep their insertion order.
type FabricCompany struct {
	ID       string    `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Products []Product `json:"products" yaml:"products"`
}

// Catalog maps every product type to its ordered list of fabric companies.
// A Catalog value is an immutable snapshot: mutations go through the catalog
// store, which produces a new snapshot sharing unmodified branches. IDs are
// unique within their immediate parent's children.
type Catalog struct {
	Buckets map[ProductType][]FabricCompany `json:"buckets" yaml:"buckets"`
}

// Companies returns the company bucket for a product type, possibly empty.
func (c *Catalog) Companies(t ProductType) []FabricCompany {
	if c == nil || c.Buckets == nil {
		return nil
	}
	return c.Buckets[t]
}

// FindCompany looks up a company by ID within a product type bucket.
func (c *Catalog) FindCompany(t ProductType, companyID string) *FabricCompany {
	for i := range c.Companies(t) {
		if c.Buckets[t][i].ID == companyID {
			return &c.Buckets[t][i]
		}
	}
	return nil
}

// FindProduct looks up a product by ID within a company.
func (co *FabricCompany) FindProduct(productID string) *Product {
	for i := range co.Products {
		if co.Products[i].ID == productID {
			return &co.Products[i]
		}
	}
	return nil
}

// FindColor looks up a color by ID within a product.
func (p *Product) FindColor(colorID string) *Color {
	for i := range p.Colors {
		if p.Colors[i].ID == colorID {
			return &p.Colors[i]
		}
	}
	return nil
}

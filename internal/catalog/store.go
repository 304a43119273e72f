// Package catalog holds the fabric catalog: an immutable snapshot tree of
// product type → companies → products → colors, mutated copy-on-write
// through the admin pathway.
package catalog

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ngasani/shadeview/model"
)

// Store owns the current catalog snapshot. Reads return the snapshot
// directly; mutations build a new snapshot that structurally shares every
// branch the mutation did not touch, then swap it in under the lock. Callers
// holding an older snapshot keep a consistent (if stale) view.
type Store struct {
	mu      sync.RWMutex
	current *model.Catalog
}

// NewStore creates a catalog store seeded with the given catalog. A nil seed
// yields an empty catalog with all product type buckets present.
func NewStore(seed *model.Catalog) *Store {
	if seed == nil {
		seed = &model.Catalog{Buckets: map[model.ProductType][]model.FabricCompany{}}
	}
	if seed.Buckets == nil {
		seed.Buckets = map[model.ProductType][]model.FabricCompany{}
	}
	return &Store{current: seed}
}

// Snapshot returns the current catalog. The returned value must be treated
// as read-only.
func (s *Store) Snapshot() *model.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Companies returns the ordered company bucket for a product type. An empty
// bucket is a valid result, not an error.
func (s *Store) Companies(t model.ProductType) []model.FabricCompany {
	return s.Snapshot().Companies(t)
}

// AddCompany appends a new company with a fresh ID and no products to the
// product type's bucket and returns it.
func (s *Store) AddCompany(t model.ProductType, name string) (model.FabricCompany, error) {
	if !t.Valid() {
		return model.FabricCompany{}, model.NewNotFoundError(
			fmt.Sprintf("product type %q not found", t),
		)
	}

	company := model.FabricCompany{
		ID:   uuid.New().String(),
		Name: name,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneBucketsShallow(s.current)
	bucket := s.current.Buckets[t]
	next.Buckets[t] = append(copyCompanies(bucket), company)
	s.current = next
	return company, nil
}

// AddProduct appends a new product with no colors to the named company.
// Returns NOT_FOUND if the company does not resolve within the bucket; the
// catalog is unchanged on failure.
func (s *Store) AddProduct(t model.ProductType, companyID, name string) (model.Product, error) {
	product := model.Product{
		ID:   uuid.New().String(),
		Name: name,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.current.Buckets[t]
	idx := companyIndex(bucket, companyID)
	if idx < 0 {
		return model.Product{}, model.NewNotFoundError(
			fmt.Sprintf("company %q not found under product type %q", companyID, t),
		)
	}

	next := cloneBucketsShallow(s.current)
	companies := copyCompanies(bucket)
	companies[idx].Products = append(copyProducts(companies[idx].Products), product)
	next.Buckets[t] = companies
	s.current = next
	return product, nil
}

// AddColor appends a new color to the named product. Returns NOT_FOUND if
// the company or product does not resolve; the catalog is unchanged on
// failure, never partially appended.
func (s *Store) AddColor(t model.ProductType, companyID, productID, name, hex string) (model.Color, error) {
	color := model.Color{
		ID:   uuid.New().String(),
		Name: name,
		Hex:  hex,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.current.Buckets[t]
	ci := companyIndex(bucket, companyID)
	if ci < 0 {
		return model.Color{}, model.NewNotFoundError(
			fmt.Sprintf("company %q not found under product type %q", companyID, t),
		)
	}
	pi := productIndex(bucket[ci].Products, productID)
	if pi < 0 {
		return model.Color{}, model.NewNotFoundError(
			fmt.Sprintf("product %q not found under company %q", productID, companyID),
		)
	}

	next := cloneBucketsShallow(s.current)
	companies := copyCompanies(bucket)
	products := copyProducts(companies[ci].Products)
	products[pi].Colors = append(copyColors(products[pi].Colors), color)
	companies[ci].Products = products
	next.Buckets[t] = companies
	s.current = next
	return color, nil
}

// cloneBucketsShallow copies the top-level bucket map. Bucket slices are
// shared until a mutation replaces one.
func cloneBucketsShallow(c *model.Catalog) *model.Catalog {
	buckets := make(map[model.ProductType][]model.FabricCompany, len(c.Buckets))
	for k, v := range c.Buckets {
		buckets[k] = v
	}
	return &model.Catalog{Buckets: buckets}
}

func copyCompanies(in []model.FabricCompany) []model.FabricCompany {
	out := make([]model.FabricCompany, len(in))
	copy(out, in)
	return out
}

func copyProducts(in []model.Product) []model.Product {
	out := make([]model.Product, len(in))
	copy(out, in)
	return out
}

func copyColors(in []model.Color) []model.Color {
	out := make([]model.Color, len(in))
	copy(out, in)
	return out
}

func companyIndex(companies []model.FabricCompany, id string) int {
	for i := range companies {
		if companies[i].ID == id {
			return i
		}
	}
	return -1
}

func productIndex(products []model.Product, id string) int {
	for i := range products {
		if products[i].ID == id {
			return i
		}
	}
	return -1
}

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngasani/shadeview/model"
)

func testSeed() *model.Catalog {
	return &model.Catalog{
		Buckets: map[model.ProductType][]model.FabricCompany{
			model.ProductTypeCurtains: {
				{
					ID:   "co-1",
					Name: "Drapery Dreams",
					Products: []model.Product{
						{
							ID:   "p-1",
							Name: "Velvet Luxe",
							Colors: []model.Color{
								{ID: "c-1", Name: "Ruby Red", Hex: "#9B111E"},
							},
						},
					},
				},
			},
			model.ProductTypeRollerBlinds: {},
		},
	}
}

func TestNewStoreNilSeed(t *testing.T) {
	s := NewStore(nil)
	snap := s.Snapshot()
	require.NotNil(t, snap)
	assert.Empty(t, snap.Companies(model.ProductTypeCurtains))
}

func TestAddCompany(t *testing.T) {
	s := NewStore(testSeed())

	company, err := s.AddCompany(model.ProductTypeCurtains, "Nordic Weave")
	require.NoError(t, err)
	assert.NotEmpty(t, company.ID)
	assert.Equal(t, "Nordic Weave", company.Name)
	assert.Empty(t, company.Products)

	bucket := s.Companies(model.ProductTypeCurtains)
	require.Len(t, bucket, 2)
	assert.Equal(t, company.ID, bucket[1].ID)
}

func TestAddCompanyUnknownProductType(t *testing.T) {
	s := NewStore(testSeed())

	_, err := s.AddCompany(model.ProductType("shutters"), "Shutter Co")
	require.Error(t, err)
	envelope := err.(*model.ErrorEnvelope)
	assert.Equal(t, model.ErrNotFound, envelope.Code)
}

func TestAddProduct(t *testing.T) {
	s := NewStore(testSeed())

	product, err := s.AddProduct(model.ProductTypeCurtains, "co-1", "Linen Breeze")
	require.NoError(t, err)
	assert.NotEmpty(t, product.ID)
	assert.Empty(t, product.Colors)

	company := s.Snapshot().FindCompany(model.ProductTypeCurtains, "co-1")
	require.NotNil(t, company)
	assert.Len(t, company.Products, 2)
}

func TestAddColorMissingProductLeavesCatalogUnchanged(t *testing.T) {
	s := NewStore(testSeed())
	before := s.Snapshot()

	_, err := s.AddColor(model.ProductTypeCurtains, "co-1", "no-such-product", "Ghost", "#000000")
	require.Error(t, err)
	envelope := err.(*model.ErrorEnvelope)
	assert.Equal(t, model.ErrNotFound, envelope.Code)

	// The snapshot pointer has not moved: nothing was partially appended.
	assert.Same(t, before, s.Snapshot())
}

func TestAddColorMissingCompany(t *testing.T) {
	s := NewStore(testSeed())

	_, err := s.AddColor(model.ProductTypeCurtains, "no-such-company", "p-1", "Ghost", "#000000")
	require.Error(t, err)
	assert.Equal(t, model.ErrNotFound, err.(*model.ErrorEnvelope).Code)
}

func TestAddColor(t *testing.T) {
	s := NewStore(testSeed())

	color, err := s.AddColor(model.ProductTypeCurtains, "co-1", "p-1", "Emerald Green", "#50C878")
	require.NoError(t, err)
	assert.NotEmpty(t, color.ID)

	product := s.Snapshot().FindCompany(model.ProductTypeCurtains, "co-1").FindProduct("p-1")
	require.NotNil(t, product)
	require.Len(t, product.Colors, 2)
	assert.Equal(t, "Emerald Green", product.Colors[1].Name)
}

// TestSnapshotIsolation verifies copy-on-write: a snapshot taken before a
// mutation keeps its pre-mutation view.
func TestSnapshotIsolation(t *testing.T) {
	s := NewStore(testSeed())
	before := s.Snapshot()

	_, err := s.AddColor(model.ProductTypeCurtains, "co-1", "p-1", "Emerald Green", "#50C878")
	require.NoError(t, err)
	_, err = s.AddCompany(model.ProductTypeRollerBlinds, "Shade Masters")
	require.NoError(t, err)

	// The old snapshot still shows one color and an empty roller bucket.
	oldProduct := before.FindCompany(model.ProductTypeCurtains, "co-1").FindProduct("p-1")
	assert.Len(t, oldProduct.Colors, 1)
	assert.Empty(t, before.Companies(model.ProductTypeRollerBlinds))

	// The current snapshot shows both writes.
	after := s.Snapshot()
	assert.Len(t, after.FindCompany(model.ProductTypeCurtains, "co-1").FindProduct("p-1").Colors, 2)
	assert.Len(t, after.Companies(model.ProductTypeRollerBlinds), 1)
}

// TestConcurrentWrites exercises the store lock under parallel admin writes.
func TestConcurrentWrites(t *testing.T) {
	s := NewStore(testSeed())

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 25; j++ {
				_, err := s.AddCompany(model.ProductTypeCurtains, "Concurrent Co")
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	assert.Len(t, s.Companies(model.ProductTypeCurtains), 201)
}

package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngasani/shadeview/model"
)

const curtainsSeedYAML = `product_type: curtains
companies:
  - id: drapery-dreams
    name: Drapery Dreams
    products:
      - id: velvet-luxe
        name: Velvet Luxe
        colors:
          - id: ruby-red
            name: Ruby Red
            hex: "#9B111E"
          - id: emerald-green
            name: Emerald Green
            hex: "#50C878"
`

const rollerSeedYAML = `product_type: roller_blinds
companies:
  - name: Shade Masters
    products:
      - name: Blockout Prime
        colors:
          - name: Charcoal
            hex: "#36454F"
`

func writeSeedFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeSeedFile(t, dir, "curtains.yaml", curtainsSeedYAML)

	sf, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, model.ProductTypeCurtains, sf.ProductType)
	assert.Equal(t, path, sf.SourceFile)
	require.Len(t, sf.Companies, 1)
	assert.Equal(t, "drapery-dreams", sf.Companies[0].ID)
	require.Len(t, sf.Companies[0].Products[0].Colors, 2)
}

func TestLoadFileGeneratesMissingIDs(t *testing.T) {
	dir := t.TempDir()
	path := writeSeedFile(t, dir, "roller.yml", rollerSeedYAML)

	sf, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	require.Len(t, sf.Companies, 1)
	assert.NotEmpty(t, sf.Companies[0].ID)
	assert.NotEmpty(t, sf.Companies[0].Products[0].ID)
	assert.NotEmpty(t, sf.Companies[0].Products[0].Colors[0].ID)
}

func TestLoadFileMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeSeedFile(t, dir, "broken.yaml", "product_type: [not\n  valid")

	_, err := NewLoader().LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing")
}

func TestLoadAllMergesDirectories(t *testing.T) {
	dir := t.TempDir()
	writeSeedFile(t, dir, "curtains.yaml", curtainsSeedYAML)
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeSeedFile(t, sub, "roller.yml", rollerSeedYAML)
	// Non-YAML files are skipped.
	writeSeedFile(t, dir, "notes.txt", "not a seed")

	cat, err := NewLoader().LoadAll([]string{dir})
	require.NoError(t, err)

	assert.Len(t, cat.Companies(model.ProductTypeCurtains), 1)
	assert.Len(t, cat.Companies(model.ProductTypeRollerBlinds), 1)
	// Every bucket exists even without a seed file.
	_, ok := cat.Buckets[model.ProductTypeVerticalBlinds]
	assert.True(t, ok)
}

func TestLoadAllMissingDirectory(t *testing.T) {
	_, err := NewLoader().LoadAll([]string{"/no/such/seed/dir"})
	require.Error(t, err)
}

func TestValidateCleanCatalog(t *testing.T) {
	dir := t.TempDir()
	writeSeedFile(t, dir, "curtains.yaml", curtainsSeedYAML)

	cat, err := NewLoader().LoadAll([]string{dir})
	require.NoError(t, err)
	assert.Empty(t, Validate(cat))
}

func TestValidateFindsProblems(t *testing.T) {
	cat := &model.Catalog{
		Buckets: map[model.ProductType][]model.FabricCompany{
			model.ProductType("shutters"): {},
			model.ProductTypeCurtains: {
				{
					ID:   "dup",
					Name: "First Co",
					Products: []model.Product{
						{ID: "p-1", Name: "Bare Product"},
						{
							ID:   "p-1",
							Name: "Dup Product",
							Colors: []model.Color{
								{ID: "c-1", Name: "", Hex: "red"},
							},
						},
					},
				},
				{ID: "dup", Name: ""},
			},
		},
	}

	errs := Validate(cat)
	require.NotEmpty(t, errs)

	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Error())
	}
	joined := strings.Join(messages, "\n")

	assert.Contains(t, joined, "unknown product type")
	assert.Contains(t, joined, "duplicate company id")
	assert.Contains(t, joined, "duplicate product id")
	assert.Contains(t, joined, "company name is empty")
	assert.Contains(t, joined, "color name is empty")
	assert.Contains(t, joined, "seeded product has no colors")
	assert.Contains(t, joined, `malformed hex value "red"`)
}

package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ngasani/shadeview/model"
)

// SeedFile is one YAML seed document describing the companies for a single
// product type bucket. Entry IDs are optional in seed files; missing IDs are
// generated at load time.
type SeedFile struct {
	ProductType model.ProductType     `yaml:"product_type"`
	Companies   []model.FabricCompany `yaml:"companies"`

	SourceFile string `yaml:"-"`
}

// Loader scans directories for YAML seed files and assembles a catalog.
type Loader struct{}

// NewLoader creates a new seed Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadAll recursively scans directories for *.yaml and *.yml files, parses
// each into a SeedFile, and merges them into one catalog. Buckets for all
// product types exist in the result even when no seed file mentions them.
func (l *Loader) LoadAll(directories []string) (*model.Catalog, error) {
	cat := &model.Catalog{Buckets: map[model.ProductType][]model.FabricCompany{}}
	for _, t := range model.ProductTypes {
		cat.Buckets[t] = nil
	}

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			sf, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			cat.Buckets[sf.ProductType] = append(cat.Buckets[sf.ProductType], sf.Companies...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return cat, nil
}

// LoadFile loads and parses a single YAML seed file, filling in generated
// IDs for entries that omit them.
func (l *Loader) LoadFile(path string) (SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeedFile{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var sf SeedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return SeedFile{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	sf.SourceFile = path

	for ci := range sf.Companies {
		if sf.Companies[ci].ID == "" {
			sf.Companies[ci].ID = uuid.New().String()
		}
		for pi := range sf.Companies[ci].Products {
			if sf.Companies[ci].Products[pi].ID == "" {
				sf.Companies[ci].Products[pi].ID = uuid.New().String()
			}
			for coi := range sf.Companies[ci].Products[pi].Colors {
				if sf.Companies[ci].Products[pi].Colors[coi].ID == "" {
					sf.Companies[ci].Products[pi].Colors[coi].ID = uuid.New().String()
				}
			}
		}
	}

	return sf, nil
}

var hexPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// ValidationError describes a single seed catalog validation failure.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks a loaded catalog for structural problems: unknown product
// types, duplicate sibling IDs, empty names, malformed hex values, and
// seeded products with no colors. Seeded products must carry at least one
// color so a freshly initialized selection always resolves to a full
// company/product/color path.
func Validate(cat *model.Catalog) []ValidationError {
	var errs []ValidationError

	for t, companies := range cat.Buckets {
		if !t.Valid() {
			errs = append(errs, ValidationError{
				Path:    string(t),
				Message: "unknown product type",
			})
			continue
		}

		companyIDs := map[string]bool{}
		for _, co := range companies {
			cpath := fmt.Sprintf("%s/%s", t, co.Name)
			if co.Name == "" {
				errs = append(errs, ValidationError{Path: cpath, Message: "company name is empty"})
			}
			if companyIDs[co.ID] {
				errs = append(errs, ValidationError{Path: cpath, Message: fmt.Sprintf("duplicate company id %q", co.ID)})
			}
			companyIDs[co.ID] = true

			productIDs := map[string]bool{}
			for _, p := range co.Products {
				ppath := fmt.Sprintf("%s/%s", cpath, p.Name)
				if p.Name == "" {
					errs = append(errs, ValidationError{Path: ppath, Message: "product name is empty"})
				}
				if productIDs[p.ID] {
					errs = append(errs, ValidationError{Path: ppath, Message: fmt.Sprintf("duplicate product id %q", p.ID)})
				}
				productIDs[p.ID] = true

				if len(p.Colors) == 0 {
					errs = append(errs, ValidationError{Path: ppath, Message: "seeded product has no colors"})
				}

				colorIDs := map[string]bool{}
				for _, c := range p.Colors {
					copath := fmt.Sprintf("%s/%s", ppath, c.Name)
					if c.Name == "" {
						errs = append(errs, ValidationError{Path: copath, Message: "color name is empty"})
					}
					if colorIDs[c.ID] {
						errs = append(errs, ValidationError{Path: copath, Message: fmt.Sprintf("duplicate color id %q", c.ID)})
					}
					colorIDs[c.ID] = true
					if !hexPattern.MatchString(c.Hex) {
						errs = append(errs, ValidationError{Path: copath, Message: fmt.Sprintf("malformed hex value %q", c.Hex)})
					}
				}
			}
		}
	}

	return errs
}

package eval

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/gotaxon/taxonomy"
)

// Dataset is a gold taxonomy: the input terms plus the categories and
// relations a good run is expected to produce. Either gold part may be
// absent, in which case the matching score is skipped.
type Dataset struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Terms       []string              `json:"terms"`
	Categories  *taxonomy.CategoryMap `json:"categories,omitempty"`
	Relations   taxonomy.RelationSet  `json:"relations,omitempty"`
}

// datasetFile is the on-disk layout. Relations are written as "Parent>Child"
// strings and categories as an ordered mapping.
type datasetFile struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Terms       []string  `yaml:"terms"`
	Categories  yaml.Node `yaml:"categories"`
	Relations   []string  `yaml:"relations"`
}

// LoadDataset reads a dataset from a YAML or JSON file.
func LoadDataset(path string) (Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("reading dataset: %w", err)
	}
	ds, err := ParseDataset(data)
	if err != nil {
		return Dataset{}, fmt.Errorf("dataset %s: %w", path, err)
	}
	return ds, nil
}

// ParseDataset decodes a dataset document. JSON input is accepted as a YAML
// subset.
func ParseDataset(data []byte) (Dataset, error) {
	var f datasetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Dataset{}, fmt.Errorf("parsing dataset: %w", err)
	}

	ds := Dataset{Name: f.Name, Description: f.Description, Terms: f.Terms}

	if f.Categories.Kind != 0 {
		cats, err := categoriesFromNode(&f.Categories)
		if err != nil {
			return Dataset{}, err
		}
		ds.Categories = cats
	}

	for i, line := range f.Relations {
		parent, child, ok := strings.Cut(line, ">")
		if !ok {
			return Dataset{}, fmt.Errorf("relation %d %q: missing '>'", i, line)
		}
		r, ok := taxonomy.NewRelation(strings.TrimSpace(parent), strings.TrimSpace(child))
		if !ok {
			return Dataset{}, fmt.Errorf("relation %d %q: invalid", i, line)
		}
		ds.Relations = append(ds.Relations, r)
	}

	if len(ds.Terms) == 0 && ds.Categories == nil {
		return Dataset{}, fmt.Errorf("dataset has neither terms nor categories")
	}
	return ds, nil
}

// categoriesFromNode walks a YAML mapping so that key order survives.
func categoriesFromNode(n *yaml.Node) (*taxonomy.CategoryMap, error) {
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("categories: expected a mapping, got line %d", n.Line)
	}
	m := taxonomy.NewCategoryMap()
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		var terms []string
		if err := val.Decode(&terms); err != nil {
			return nil, fmt.Errorf("categories[%s]: %w", key.Value, err)
		}
		m.Set(key.Value, terms)
	}
	return m, nil
}

// SampleDataset is a small built-in food taxonomy, used when no dataset
// file is given.
func SampleDataset() Dataset {
	cats := taxonomy.NewCategoryMap()
	cats.Set("Fruit", []string{"Apple", "Banana", "Citrus", "Orange", "Lemon"})
	cats.Set("Vegetable", []string{"Carrot", "Root vegetable", "Spinach", "Leafy green"})
	cats.Set("Other", []string{"Food", "Produce"})

	rel := func(p, c string) taxonomy.Relation { return taxonomy.Relation{Parent: p, Child: c} }
	return Dataset{
		Name:        "sample-food",
		Description: "Produce terms with a shallow hierarchy",
		Terms: []string{
			"Food", "Produce", "Apple", "Banana", "Citrus", "Orange", "Lemon",
			"Carrot", "Root vegetable", "Spinach", "Leafy green",
		},
		Categories: cats,
		Relations: taxonomy.RelationSet{
			rel("Food", "Produce"),
			rel("Produce", "Apple"),
			rel("Produce", "Banana"),
			rel("Produce", "Citrus"),
			rel("Citrus", "Orange"),
			rel("Citrus", "Lemon"),
			rel("Produce", "Root vegetable"),
			rel("Root vegetable", "Carrot"),
			rel("Produce", "Leafy green"),
			rel("Leafy green", "Spinach"),
		},
	}
}

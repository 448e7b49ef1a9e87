package gotaxon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/brunobiangulo/gotaxon/parser"
	"github.com/brunobiangulo/gotaxon/taxonomy"
)

// File names inside a task group directory.
const (
	TrainDataFile = "train_data.txt"
	CategoryFile  = "category.txt"
	RelationFile  = "isArelationship.json"
)

var taskGroupRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// TaskGroupDir returns the directory of a task group under dataDir. Names
// that could escape dataDir are rejected with ErrInvalidConfig.
func TaskGroupDir(dataDir, group string) (string, error) {
	if !taskGroupRe.MatchString(group) || group == ".." {
		return "", fmt.Errorf("%w: invalid task group %q", ErrInvalidConfig, group)
	}
	return filepath.Join(dataDir, group), nil
}

// ReadCategoryFile decodes a category map written by WriteCategoryFile.
// category.txt carries JSON despite its extension, so the content is always
// decoded as JSON.
func ReadCategoryFile(path string) (*taxonomy.CategoryMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	pr, err := parser.ParseCategoryData(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidInput, path, err)
	}
	return pr.Categories, nil
}

// WriteCategoryFile writes a category map as 2-space indented JSON, keys in
// insertion order.
func WriteCategoryFile(path string, m *taxonomy.CategoryMap) error {
	if m == nil {
		m = taxonomy.NewCategoryMap()
	}
	return writeJSONFile(path, m)
}

// WriteRelationFile writes relations as a 2-space indented JSON array of
// {parent, child} objects.
func WriteRelationFile(path string, rs taxonomy.RelationSet) error {
	if rs == nil {
		rs = taxonomy.RelationSet{}
	}
	return writeJSONFile(path, rs)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Package artifact manages the JSON artifacts and generated images that
// pipeline stages read and write under the configured data directory.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Well-known artifact file names. Stage outputs keep the same names across
// runs so cached mode can find them.
const (
	StockReport              = "stock_report.json"
	CompanyAnalysis          = "company_analysis_output.json"
	ComplianceFindings       = "compliance_findings.json"
	ComplianceRecommendation = "compliance_recommendation.json"
	ValuationPolicy          = "valuationpolicy_processed.json"
)

// Store reads and writes artifacts rooted at a data directory.
type Store struct {
	dataDir string
}

// NewStore creates a store rooted at dataDir, creating the directory if needed.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("artifact: data directory not configured")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create data dir: %w", err)
	}
	return &Store{dataDir: dataDir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dataDir
}

// Path returns the absolute path of a named artifact.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dataDir, name)
}

// Exists reports whether the named artifact is present.
func (s *Store) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && !info.IsDir()
}

// ReadJSON decodes the named artifact into v.
func (s *Store) ReadJSON(name string, v any) error {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return fmt.Errorf("artifact: read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("artifact: decode %s: %w", name, err)
	}
	return nil
}

// WriteJSON encodes v and writes it atomically: a temp file in the same
// directory followed by a rename, so readers never observe partial output.
func (s *Store) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(s.dataDir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("artifact: temp file for %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("artifact: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("artifact: close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("artifact: rename %s: %w", name, err)
	}
	return nil
}

// ImagesDir returns the generated-images directory, creating it if needed.
func (s *Store) ImagesDir() (string, error) {
	dir := filepath.Join(s.dataDir, "images")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifact: create images dir: %w", err)
	}
	return dir, nil
}

// ImageName returns the deterministic filename for a stage's generated image.
// A stage with exactly one canonical dashboard keeps its dashboard name;
// additional images get an index suffix.
func ImageName(dashboard, prefix string, idx, total int) string {
	if dashboard != "" && total == 1 {
		return dashboard
	}
	return fmt.Sprintf("%s_%d.png", prefix, idx)
}

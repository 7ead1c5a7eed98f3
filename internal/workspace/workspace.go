package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Family selects the runner family a workspace's tests execute under.
// It drives browser-only prerequisite checks and the retry strategy.
type Family string

const (
	FamilyBrowser Family = "browser"
	FamilyMobile  Family = "mobile"
)

// ID identifies a workspace by name. The zero value means "undetected".
type ID string

// Undetected is returned when no workspace can be unambiguously inferred.
const Undetected ID = ""

// Workspace is a named, self-contained test target inside the monorepo.
type Workspace struct {
	Name      string `yaml:"name"`
	Path      string `yaml:"path,omitempty"`      // path prefix relative to project root; defaults to Name
	Family    Family `yaml:"family"`
	ReportDir string `yaml:"reportDir,omitempty"` // relative to the workspace path; defaults to test-reports
}

// PathPrefix returns the workspace's path prefix relative to the project root.
func (w Workspace) PathPrefix() string {
	if w.Path != "" {
		return w.Path
	}
	return w.Name
}

// ReportBase returns the workspace's report directory relative to the project root.
func (w Workspace) ReportBase() string {
	dir := w.ReportDir
	if dir == "" {
		dir = "test-reports"
	}
	return filepath.Join(w.PathPrefix(), dir)
}

// Registry holds the known workspaces in a stable order.
type Registry struct {
	Workspaces []Workspace `yaml:"workspaces"`
}

// Default returns the built-in workspace registry.
func Default() *Registry {
	return &Registry{
		Workspaces: []Workspace{
			{Name: "wingspanai-web", Family: FamilyBrowser},
			{Name: "smartscreen", Family: FamilyBrowser},
			{Name: "wingspanai-mobile", Family: FamilyMobile},
		},
	}
}

// ConfigFile is the optional registry override at the project root.
const ConfigFile = "qarun.yaml"

// Load returns the registry for a project root: qarun.yaml when present,
// otherwise the built-in defaults.
func Load(projectRoot string) (*Registry, error) {
	path := filepath.Join(projectRoot, ConfigFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ConfigFile, err)
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigFile, err)
	}
	if len(reg.Workspaces) == 0 {
		return Default(), nil
	}
	for _, w := range reg.Workspaces {
		if w.Name == "" {
			return nil, fmt.Errorf("%s: workspace with empty name", ConfigFile)
		}
		switch w.Family {
		case FamilyBrowser, FamilyMobile:
		default:
			return nil, fmt.Errorf("%s: workspace %q has unknown family %q", ConfigFile, w.Name, w.Family)
		}
	}
	return &reg, nil
}

// Lookup finds a workspace by name.
func (r *Registry) Lookup(id ID) (Workspace, bool) {
	for _, w := range r.Workspaces {
		if w.Name == string(id) {
			return w, true
		}
	}
	return Workspace{}, false
}

// Names returns the workspace names in registry order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Workspaces))
	for _, w := range r.Workspaces {
		names = append(names, w.Name)
	}
	return names
}

package hierarchy

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"approval-tracker/internal/domain"
)

// File is the on-disk layout:
//
//	projects:
//	  HPC:
//	    Gestión de Citas:
//	      assignees: [u-1, u-2]
//	      doc_types: [AS_IS, TO_BE]
type File struct {
	Projects map[domain.Project]map[string]domain.Assignment `yaml:"projects"`
}

// FileLookup answers (project, microprocess) -> assignment from a loaded File.
// Unknown leaves resolve to an empty assignment.
type FileLookup struct {
	projects map[domain.Project]map[string]domain.Assignment
}

func Parse(data []byte) (*FileLookup, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &FileLookup{projects: map[domain.Project]map[string]domain.Assignment{}}, nil
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("hierarchy: decode: %w", err)
	}
	for project, leaves := range f.Projects {
		if !project.IsValid() {
			return nil, fmt.Errorf("hierarchy: unknown project %q", project)
		}
		for micro, a := range leaves {
			for _, dt := range a.RequiredDocTypes {
				if !dt.IsValid() {
					return nil, fmt.Errorf("hierarchy: %s/%s: unknown document type %q", project, micro, dt)
				}
			}
		}
	}
	if f.Projects == nil {
		f.Projects = map[domain.Project]map[string]domain.Assignment{}
	}
	return &FileLookup{projects: f.Projects}, nil
}

// Load reads path. An empty path yields an empty lookup.
func Load(path string) (*FileLookup, error) {
	if path == "" {
		return Parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: read %s: %w", path, err)
	}
	return Parse(data)
}

func (l *FileLookup) Lookup(_ context.Context, project domain.Project, microprocess string) (domain.Assignment, error) {
	leaves := l.projects[project]
	if a, ok := leaves[microprocess]; ok {
		return a, nil
	}
	for name, a := range leaves {
		if strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(microprocess)) {
			return a, nil
		}
	}
	return domain.Assignment{}, nil
}

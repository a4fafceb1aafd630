package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/keshon/guild-warden/internal/permission"
)

type permissionsFile struct {
	Levels []permission.Rule `yaml:"levels"`
}

// LoadRules reads the permission ladder from path. A missing file yields the
// default ladder; an empty one is an error.
func LoadRules(path string) ([]permission.Rule, error) {
	if path == "" {
		return permission.DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return permission.DefaultRules(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read permissions file: %w", err)
	}

	var f permissionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse permissions file %s: %w", path, err)
	}
	if len(f.Levels) == 0 {
		return nil, fmt.Errorf("permissions file %s defines no levels", path)
	}
	return f.Levels, nil
}

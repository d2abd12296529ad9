package criteria

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

// CoreMaps is the casual pool selected when nothing has been saved yet.
var CoreMaps = []string{
	"cp_badlands",
	"cp_dustbowl",
	"cp_granary",
	"cp_gravelpit",
	"ctf_2fort",
	"ctf_turbine",
	"koth_harvest_final",
	"koth_viaduct",
	"pl_badwater",
	"pl_upward",
}

type casualFile struct {
	Version int      `yaml:"version"`
	Maps    []string `yaml:"maps"`
}

const fileVersion = 1

func Defaults() types.SearchCriteria {
	maps := slices.Clone(CoreMaps)
	slices.Sort(maps)
	return types.SearchCriteria{Mode: types.ModeCasual, CasualMaps: maps}
}

// LoadCasual reads the saved casual map selection. A missing file yields the core maps.
func LoadCasual(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Defaults().CasualMaps, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read casual criteria: %w", err)
	}

	var f casualFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse casual criteria %s: %w", path, err)
	}
	var c types.SearchCriteria
	for _, m := range f.Maps {
		c.SetMapSelected(m, true)
	}
	return c.CasualMaps, nil
}

// SaveCasual writes the selection through a temp file so a crash never leaves half a file.
func SaveCasual(path string, maps []string) error {
	data, err := yaml.Marshal(casualFile{Version: fileVersion, Maps: maps})
	if err != nil {
		return fmt.Errorf("encode casual criteria: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create criteria dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write casual criteria: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace casual criteria: %w", err)
	}
	return nil
}

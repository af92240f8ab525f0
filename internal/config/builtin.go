package config

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	forgeerrors "github.com/jrmorin/forgeup/pkg/errors"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// BuiltinTargets lists the embedded target variants.
func BuiltinTargets() []string {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil
	}

	targets := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") {
			targets = append(targets, strings.TrimSuffix(name, ".yaml"))
		}
	}
	sort.Strings(targets)
	return targets
}

// LoadBuiltin parses one of the embedded target manifests.
func LoadBuiltin(target string) (*Manifest, error) {
	path := fmt.Sprintf("builtin/%s.yaml", target)
	data, err := builtinFS.ReadFile(path)
	if err != nil {
		return nil, forgeerrors.NewValidationError("target",
			fmt.Sprintf("unknown target %q (available: %s)", target, strings.Join(BuiltinTargets(), ", ")), err)
	}

	return parseManifestBytes(path, data)
}

package config

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// FailureMode controls whether a step failure aborts the whole pipeline.
type FailureMode string

const (
	// FailureFatal aborts the run on step failure.
	FailureFatal FailureMode = "fatal"
	// FailureRecoverable logs the failure and lets independent steps continue.
	FailureRecoverable FailureMode = "recoverable"
)

const (
	// StepTypePackage installs system packages through a package manager.
	StepTypePackage = "package"
	// StepTypeSource fetches and builds a project from source.
	StepTypeSource = "source"
)

// Manifest represents the full provisioning document.
type Manifest struct {
	Version     string   `yaml:"version" validate:"required,semver"`
	Name        string   `yaml:"name" validate:"required,min=1,max=100"`
	Description string   `yaml:"description,omitempty"`
	Settings    Settings `yaml:"settings,omitempty"`
	Steps       []Step   `yaml:"steps" validate:"required,min=1,dive"`
	Probes      []Probe  `yaml:"probes,omitempty" validate:"omitempty,dive"`
}

// Settings holds global execution parameters.
type Settings struct {
	Timeout int  `yaml:"timeout,omitempty" validate:"omitempty,min=1,max=360000"`
	DryRun  bool `yaml:"dry_run,omitempty"`
	Verbose bool `yaml:"verbose,omitempty"`
}

// Step describes an individual unit of provisioning work in the DAG.
type Step struct {
	ID          string      `yaml:"id" validate:"required,step_id"`
	Name        string      `yaml:"name,omitempty"`
	Type        string      `yaml:"type" validate:"required,oneof=package source"`
	DependsOn   []string    `yaml:"depends_on,omitempty"`
	Enabled     bool        `yaml:"enabled,omitempty"`
	FailureMode FailureMode `yaml:"failure_mode,omitempty" validate:"omitempty,oneof=fatal recoverable"`
	Creates     string      `yaml:"creates,omitempty"`

	Package *PackageStep `yaml:",inline,omitempty"`
	Source  *SourceStep  `yaml:",inline,omitempty"`
}

// UnmarshalYAML customises step decoding to populate kind-specific structures
// and apply per-kind defaults.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	type baseStep struct {
		ID          string      `yaml:"id"`
		Name        string      `yaml:"name"`
		Type        string      `yaml:"type"`
		DependsOn   []string    `yaml:"depends_on"`
		Enabled     *bool       `yaml:"enabled"`
		FailureMode FailureMode `yaml:"failure_mode"`
		Creates     string      `yaml:"creates"`
	}

	var base baseStep
	if err := value.Decode(&base); err != nil {
		return err
	}

	s.ID = base.ID
	s.Name = base.Name
	s.Type = base.Type
	s.DependsOn = append([]string(nil), base.DependsOn...)
	s.Creates = base.Creates
	if base.Enabled != nil {
		s.Enabled = *base.Enabled
	} else {
		s.Enabled = true
	}

	s.Package = nil
	s.Source = nil

	switch base.Type {
	case StepTypePackage:
		var pkg PackageStep
		if err := value.Decode(&pkg); err != nil {
			return err
		}
		s.Package = &pkg
	case StepTypeSource:
		var src SourceStep
		if err := value.Decode(&src); err != nil {
			return err
		}
		s.Source = &src
	}

	// Package installs continue past individual failures; a broken native
	// build poisons everything downstream that links against it.
	s.FailureMode = base.FailureMode
	if s.FailureMode == "" {
		switch base.Type {
		case StepTypePackage:
			s.FailureMode = FailureRecoverable
		default:
			s.FailureMode = FailureFatal
		}
	}

	return nil
}

// PackageStep installs one or more system packages.
type PackageStep struct {
	Packages []string `yaml:"packages" validate:"required,min=1,dive,min=1,max=100"`
	Manager  string   `yaml:"manager,omitempty" validate:"omitempty,oneof=auto apt dnf brew choco"`
	Update   bool     `yaml:"update,omitempty"`
}

// SourceStep acquires and builds a native project from source.
type SourceStep struct {
	URL         string              `yaml:"url,omitempty"`
	ArchiveURL  string              `yaml:"archive_url,omitempty"`
	ArchivePath string              `yaml:"archive_path,omitempty"`
	Destination string              `yaml:"destination" validate:"required"`
	Branch      string              `yaml:"branch,omitempty"`
	Depth       int                 `yaml:"depth,omitempty" validate:"omitempty,min=0"`
	Refresh     bool                `yaml:"refresh,omitempty"`
	BuildSystem string              `yaml:"build_system" validate:"required,oneof=autotools cmake"`
	SourceDir   string              `yaml:"source_dir,omitempty"`
	BuildDir    string              `yaml:"build_dir,omitempty"`
	Prefix      string              `yaml:"prefix,omitempty"`
	Bootstrap   string              `yaml:"bootstrap,omitempty"`
	Options     map[string]string   `yaml:"options,omitempty"`
	Candidates  []map[string]string `yaml:"candidates,omitempty"`
	Elevate     bool                `yaml:"elevate,omitempty"`
	Ldconfig    bool                `yaml:"ldconfig,omitempty"`
	LdconfigSet bool                `yaml:"-"`
}

// UnmarshalYAML applies defaults for source steps. The linker-cache refresh
// defaults on; dependents must not run before it completes.
func (s *SourceStep) UnmarshalYAML(value *yaml.Node) error {
	type rawSource SourceStep
	var temp rawSource
	if err := value.Decode(&temp); err != nil {
		return err
	}
	*s = SourceStep(temp)
	s.LdconfigSet = hasYAMLKey(value, "ldconfig")
	if !s.LdconfigSet {
		s.Ldconfig = true
	}
	return nil
}

// Probe queries an installed tool's version during the verification stage.
type Probe struct {
	Name    string   `yaml:"name" validate:"required,min=1"`
	Command string   `yaml:"command" validate:"required,min=1"`
	Args    []string `yaml:"args,omitempty"`
}

// StepMap builds a lookup table for steps by ID.
func StepMap(steps []Step) map[string]Step {
	out := make(map[string]Step, len(steps))
	for _, step := range steps {
		out[step.ID] = step
	}
	return out
}

func hasYAMLKey(node *yaml.Node, key string) bool {
	if node == nil || node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i < len(node.Content); i += 2 {
		k := node.Content[i]
		if strings.EqualFold(k.Value, key) {
			return true
		}
	}
	return false
}

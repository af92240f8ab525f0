package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	forgeerrors "github.com/jrmorin/forgeup/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	semverPattern = regexp.MustCompile(`^\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z-.]+)?(?:\+[0-9A-Za-z-.]+)?$`)
	stepIDPattern = regexp.MustCompile(`^[a-z0-9_]+$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
			return semverPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("step_id", func(fl validator.FieldLevel) bool {
			return stepIDPattern.MatchString(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// ValidateManifest performs schema and cross-field validation on the manifest.
// Step graph defects (duplicate ids, unknown dependencies, cycles) are caught
// here, before any step executes.
func ValidateManifest(manifest *Manifest) error {
	if manifest == nil {
		return forgeerrors.NewValidationError("manifest", "manifest is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(manifest); err != nil {
		return convertValidationError(err)
	}

	stepIndex := make(map[string]int, len(manifest.Steps))

	for i, step := range manifest.Steps {
		if _, exists := stepIndex[step.ID]; exists {
			return forgeerrors.NewValidationError(fieldForStep(i, "id"), fmt.Sprintf("duplicate step id %q", step.ID), nil)
		}

		if err := ValidateStep(step); err != nil {
			return err
		}

		stepIndex[step.ID] = i
	}

	for i, step := range manifest.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := stepIndex[dep]; !ok {
				return forgeerrors.NewValidationError(fieldForStep(i, "depends_on"), fmt.Sprintf("references unknown step %q", dep), nil)
			}
		}
	}

	if cycle := detectCycle(manifest.Steps); len(cycle) > 0 {
		return forgeerrors.NewCycleError(cycle)
	}

	return nil
}

// ValidateStep validates a single step independent of other manifest
// properties.
func ValidateStep(step Step) error {
	v := validatorInstance()
	if err := v.Struct(step); err != nil {
		return convertValidationError(err)
	}

	switch step.Type {
	case StepTypePackage:
		if step.Package == nil {
			return forgeerrors.NewValidationError(step.ID, "package configuration is required", nil)
		}
		if err := v.Struct(step.Package); err != nil {
			return convertValidationError(err)
		}
	case StepTypeSource:
		if step.Source == nil {
			return forgeerrors.NewValidationError(step.ID, "source configuration is required", nil)
		}
		if err := v.Struct(step.Source); err != nil {
			return convertValidationError(err)
		}
		if err := validateSourceOrigin(step); err != nil {
			return err
		}
	default:
		return forgeerrors.NewValidationError(step.ID, fmt.Sprintf("unknown step type %q", step.Type), nil)
	}

	return nil
}

func validateSourceOrigin(step Step) error {
	src := step.Source
	hasRepo := strings.TrimSpace(src.URL) != ""
	hasArchive := strings.TrimSpace(src.ArchiveURL) != ""

	if hasRepo == hasArchive {
		return forgeerrors.NewValidationError(step.ID, "exactly one of url or archive_url is required", nil)
	}
	if !hasRepo && (src.Branch != "" || src.Depth > 0 || src.Refresh) {
		return forgeerrors.NewValidationError(step.ID, "branch, depth and refresh only apply to repository origins", nil)
	}
	return nil
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return forgeerrors.NewValidationError(field, msg, err)
	}

	return forgeerrors.NewValidationError("manifest", err.Error(), err)
}

func yamlishFieldName(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	parts := strings.Split(ns, ".")
	var lowered []string
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}

func fieldForStep(index int, field string) string {
	return fmt.Sprintf("steps[%d].%s", index, field)
}

// detectCycle returns the nodes participating in a dependency cycle, or nil
// if no cycle exists. Disabled steps do not contribute edges.
func detectCycle(steps []Step) []string {
	enabled := make(map[string]bool, len(steps))
	for _, step := range steps {
		if step.Enabled {
			enabled[step.ID] = true
		}
	}

	graph := make(map[string][]string, len(enabled))
	for _, step := range steps {
		if !enabled[step.ID] {
			continue
		}
		deps := make([]string, 0, len(step.DependsOn))
		for _, dep := range step.DependsOn {
			if enabled[dep] {
				deps = append(deps, dep)
			}
		}
		graph[step.ID] = deps
	}

	visiting := make(map[string]bool, len(steps))
	visited := make(map[string]bool, len(steps))
	var stack []string

	var cycle []string
	var dfs func(string) bool
	dfs = func(node string) bool {
		visiting[node] = true
		stack = append(stack, node)

		for _, dep := range graph[node] {
			if !visited[dep] {
				if visiting[dep] {
					idx := indexOf(stack, dep)
					if idx >= 0 {
						cycle = append([]string{}, stack[idx:]...)
						cycle = append(cycle, dep)
					}
					return true
				}
				if dfs(dep) {
					return true
				}
			}
		}

		visiting[node] = false
		visited[node] = true
		stack = stack[:len(stack)-1]
		return false
	}

	ids := make([]string, 0, len(enabled))
	for id := range enabled {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if visited[id] {
			continue
		}
		if dfs(id) {
			break
		}
	}

	return cycle
}

func indexOf(slice []string, target string) int {
	for i, v := range slice {
		if v == target {
			return i
		}
	}
	return -1
}

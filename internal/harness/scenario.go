package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/quill/internal/editor"
)

// Scenario is a scripted session against quill: logins, post operations
// and editor interactions, followed by assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step operations.
const (
	OpLogin  = "login"
	OpLogout = "logout"
	OpCreate = "create"
	OpList   = "list"
	OpGet    = "get"
	OpPush   = "push"
	OpSelect = "select"
	OpType   = "type"
	OpFormat = "format"
)

// Step is one operation. Which fields apply depends on Op.
type Step struct {
	Op string `yaml:"op"`

	// login
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// create. A nil Content publishes the editor's current value.
	Title   string  `yaml:"title,omitempty"`
	Content *string `yaml:"content,omitempty"`

	// list. Empty means the logged-in user.
	Author string `yaml:"author,omitempty"`

	// get
	ID string `yaml:"id,omitempty"`

	// push. A nil Value pushes the external value back, as a re-render
	// would.
	Value *string `yaml:"value,omitempty"`

	// select
	Start *int `yaml:"start,omitempty"`
	End   *int `yaml:"end,omitempty"`

	// type
	Text string `yaml:"text,omitempty"`

	// format
	Command string `yaml:"command,omitempty"`

	// Expect, when set, checks the step's outcome.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the expected outcome of a step. Unset fields are not
// checked.
type Expect struct {
	// Error is a substring of the expected error. Empty expects success.
	Error string `yaml:"error,omitempty"`

	// Found is checked by get.
	Found *bool `yaml:"found,omitempty"`

	// IDs is the exact id order returned by list.
	IDs []string `yaml:"ids,omitempty"`

	// Written is checked by push.
	Written *bool `yaml:"written,omitempty"`

	// Markup is the editor markup after push, type or format.
	Markup *string `yaml:"markup,omitempty"`
}

// Assertion types.
const (
	AssertPostCount     = "post_count"
	AssertSynced        = "synced"
	AssertSurfaceWrites = "surface_writes"
	AssertTraceContains = "trace_contains"
	AssertExternal      = "external"
)

// Assertion validates the state after all steps.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Author is a username for post_count. Empty means the logged-in user.
	Author string `yaml:"author,omitempty"`

	// Count is used by post_count, surface_writes and trace_contains.
	Count *int `yaml:"count,omitempty"`

	// Op and Outcome select events for trace_contains.
	Op      string `yaml:"op,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Value is the expected markup for external.
	Value string `yaml:"value,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos do not silently skip checks.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files under dir, sorted. A
// non-empty filter is a glob matched against the file name without its
// extension.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Op {
	case OpLogin, OpLogout, OpCreate, OpList, OpPush:
	case OpGet:
		if step.ID == "" {
			return fmt.Errorf("id is required for get")
		}
	case OpSelect:
		if step.Start == nil || step.End == nil {
			return fmt.Errorf("start and end are required for select")
		}
	case OpType:
		if step.Text == "" {
			return fmt.Errorf("text is required for type")
		}
	case OpFormat:
		if _, err := editor.ParseCommand(step.Command); err != nil {
			return err
		}
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertPostCount, AssertSurfaceWrites:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("non-negative count is required for %s", a.Type)
		}
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("op is required for trace_contains")
		}
		if a.Outcome != "" && a.Outcome != OutcomeOK && a.Outcome != OutcomeError {
			return fmt.Errorf("outcome must be %q or %q", OutcomeOK, OutcomeError)
		}
	case AssertSynced, AssertExternal:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

package crew

import (
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	TaskValidate   = "validate_message_task"
	TaskSchedule   = "schedule_reminder_task"
	TaskCoordinate = "coordinate_reminders_task"

	AgentsFile = "agents.yaml"
	TasksFile  = "tasks.yaml"

	DefaultOutputFile = "reminder_report.json"
)

// taskOrder is the fixed sequential process.
var taskOrder = []string{TaskValidate, TaskSchedule, TaskCoordinate}

// TaskNames lists the tasks in execution order.
func TaskNames() []string {
	return append([]string(nil), taskOrder...)
}

//go:embed defaults/*.yaml
var defaultsFS embed.FS

type AgentConfig struct {
	Role      string `yaml:"role" json:"role"`
	Goal      string `yaml:"goal" json:"goal"`
	Backstory string `yaml:"backstory" json:"backstory"`
}

type TaskConfig struct {
	Description    string `yaml:"description" json:"description"`
	ExpectedOutput string `yaml:"expected_output" json:"expected_output"`
	Agent          string `yaml:"agent" json:"agent"`
	OutputFile     string `yaml:"output_file,omitempty" json:"output_file,omitempty"`
}

// Definition is the agent and task configuration of the crew.
type Definition struct {
	Agents map[string]AgentConfig
	Tasks  map[string]TaskConfig
}

// DefaultDefinition returns the built-in configuration.
func DefaultDefinition() *Definition {
	d, err := parseDefinition(mustRead("defaults/"+AgentsFile), mustRead("defaults/"+TasksFile))
	if err != nil {
		panic(err)
	}
	return d
}

func mustRead(name string) []byte {
	b, err := defaultsFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return b
}

// LoadDefinition reads agents.yaml and tasks.yaml from dir. An empty dir
// returns the built-in configuration.
func LoadDefinition(fs afero.Fs, dir string) (*Definition, error) {
	if dir == "" {
		return DefaultDefinition(), nil
	}
	agents, err := afero.ReadFile(fs, filepath.Join(dir, AgentsFile))
	if err != nil {
		return nil, fmt.Errorf("read agents config: %w", err)
	}
	tasks, err := afero.ReadFile(fs, filepath.Join(dir, TasksFile))
	if err != nil {
		return nil, fmt.Errorf("read tasks config: %w", err)
	}
	return parseDefinition(agents, tasks)
}

func parseDefinition(agents, tasks []byte) (*Definition, error) {
	d := &Definition{}
	if err := yaml.Unmarshal(agents, &d.Agents); err != nil {
		return nil, fmt.Errorf("parse %s: %w", AgentsFile, err)
	}
	if err := yaml.Unmarshal(tasks, &d.Tasks); err != nil {
		return nil, fmt.Errorf("parse %s: %w", TasksFile, err)
	}
	for name, a := range d.Agents {
		a.Role = strings.TrimSpace(a.Role)
		a.Goal = strings.TrimSpace(a.Goal)
		a.Backstory = strings.TrimSpace(a.Backstory)
		d.Agents[name] = a
	}
	for name, t := range d.Tasks {
		t.Description = strings.TrimSpace(t.Description)
		t.ExpectedOutput = strings.TrimSpace(t.ExpectedOutput)
		t.Agent = strings.TrimSpace(t.Agent)
		t.OutputFile = strings.TrimSpace(t.OutputFile)
		if name == TaskCoordinate && t.OutputFile == "" {
			t.OutputFile = DefaultOutputFile
		}
		d.Tasks[name] = t
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks that every task of the process exists and is bound to a
// configured agent.
func (d *Definition) Validate() error {
	var errs []error
	for _, name := range taskOrder {
		t, ok := d.Tasks[name]
		if !ok {
			errs = append(errs, fmt.Errorf("task %q is not configured", name))
			continue
		}
		if t.Description == "" {
			errs = append(errs, fmt.Errorf("task %q has no description", name))
		}
		a, ok := d.Agents[t.Agent]
		if !ok {
			errs = append(errs, fmt.Errorf("task %q references unknown agent %q", name, t.Agent))
			continue
		}
		if a.Role == "" {
			errs = append(errs, fmt.Errorf("agent %q has no role", t.Agent))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrValidationFailed, errors.Join(errs...))
	}
	return nil
}

// Stage returns the task and agent configuration bound to task.
func (d *Definition) Stage(task string) (TaskConfig, AgentConfig) {
	t := d.Tasks[task]
	return t, d.Agents[t.Agent]
}

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// Interpolate replaces {key} with the matching input. Unknown keys are left
// as written.
func Interpolate(text string, in Inputs) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		if v, ok := in[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

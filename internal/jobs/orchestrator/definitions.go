package orchestrator

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

//go:embed pipelines.yaml
var pipelinesFS embed.FS

type yamlRetry struct {
	MaxAttempts *int           `yaml:"max_attempts"`
	MinBackoff  *time.Duration `yaml:"min_backoff"`
	MaxBackoff  *time.Duration `yaml:"max_backoff"`
	Jitter      *float64       `yaml:"jitter"`
}

type yamlStep struct {
	Name    string         `yaml:"name"`
	Timeout *time.Duration `yaml:"timeout"`
	Retry   *yamlRetry     `yaml:"retry"`
}

type yamlPipeline struct {
	Steps []yamlStep `yaml:"steps"`
}

type yamlSpec struct {
	Version  int `yaml:"version"`
	Defaults struct {
		Timeout time.Duration `yaml:"timeout"`
		Retry   yamlRetry     `yaml:"retry"`
	} `yaml:"defaults"`
	Pipelines map[string]yamlPipeline `yaml:"pipelines"`
}

// StepDef is the configured order, timeout and retry policy of one step.
type StepDef struct {
	Name    string
	Timeout time.Duration
	Retry   RetryPolicy
}

// Definitions holds every pipeline's ordered step definitions.
type Definitions struct {
	pipelines map[string][]StepDef
}

// Load returns the pipeline definitions, reading overridePath when it is set.
// An unreadable or invalid override falls back to the embedded definitions
// with a warning.
func Load(log *logger.Logger, overridePath string) *Definitions {
	if path := strings.TrimSpace(overridePath); path != "" {
		d, err := loadFile(path)
		if err == nil {
			return d
		}
		if log != nil {
			log.Warn("orchestrator: pipeline override invalid; using embedded definitions", "path", path, "error", err)
		}
	}
	data, err := pipelinesFS.ReadFile("pipelines.yaml")
	if err != nil {
		panic(fmt.Sprintf("orchestrator: embedded pipelines.yaml missing: %v", err))
	}
	d, err := Parse(data)
	if err != nil {
		panic(fmt.Sprintf("orchestrator: embedded pipelines.yaml invalid: %v", err))
	}
	return d
}

func loadFile(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates a pipelines document.
func Parse(data []byte) (*Definitions, error) {
	var spec yamlSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	if len(spec.Pipelines) == 0 {
		return nil, errors.New("no pipelines defined")
	}
	base := RetryPolicy{MaxAttempts: 3}
	applyRetry(&base, &spec.Defaults.Retry)
	baseTimeout := spec.Defaults.Timeout

	out := &Definitions{pipelines: make(map[string][]StepDef, len(spec.Pipelines))}
	for name, p := range spec.Pipelines {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.New("pipeline name is required")
		}
		if len(p.Steps) == 0 {
			return nil, fmt.Errorf("pipeline %s: no steps defined", name)
		}
		seen := map[string]bool{}
		steps := make([]StepDef, 0, len(p.Steps))
		for _, s := range p.Steps {
			stepName := strings.TrimSpace(s.Name)
			if stepName == "" {
				return nil, fmt.Errorf("pipeline %s: step name is required", name)
			}
			if seen[stepName] {
				return nil, fmt.Errorf("pipeline %s: duplicate step %s", name, stepName)
			}
			seen[stepName] = true
			def := StepDef{Name: stepName, Timeout: baseTimeout, Retry: base}
			if s.Timeout != nil {
				def.Timeout = *s.Timeout
			}
			applyRetry(&def.Retry, s.Retry)
			if def.Retry.MaxAttempts < 1 {
				return nil, fmt.Errorf("pipeline %s: step %s: max_attempts must be >= 1", name, stepName)
			}
			steps = append(steps, def)
		}
		out.pipelines[name] = steps
	}
	return out, nil
}

func applyRetry(dst *RetryPolicy, src *yamlRetry) {
	if src == nil {
		return
	}
	if src.MaxAttempts != nil {
		dst.MaxAttempts = *src.MaxAttempts
	}
	if src.MinBackoff != nil {
		dst.MinBackoff = *src.MinBackoff
	}
	if src.MaxBackoff != nil {
		dst.MaxBackoff = *src.MaxBackoff
	}
	if src.Jitter != nil {
		dst.JitterFrac = *src.Jitter
	}
}

func (d *Definitions) Steps(pipeline string) ([]StepDef, bool) {
	if d == nil {
		return nil, false
	}
	s, ok := d.pipelines[pipeline]
	return s, ok
}

// Bind attaches step functions to the configured order of pipeline. Every
// configured step needs a function and every function needs a configured step.
func (d *Definitions) Bind(pipeline string, funcs map[string]StepFunc) (Pipeline, error) {
	defs, ok := d.Steps(pipeline)
	if !ok {
		return Pipeline{}, fmt.Errorf("pipeline %s: not defined", pipeline)
	}
	used := map[string]bool{}
	steps := make([]Step, 0, len(defs))
	for _, def := range defs {
		fn, ok := funcs[def.Name]
		if !ok || fn == nil {
			return Pipeline{}, fmt.Errorf("pipeline %s: no function for step %s", pipeline, def.Name)
		}
		used[def.Name] = true
		steps = append(steps, Step{Name: def.Name, Timeout: def.Timeout, Retry: def.Retry, Run: fn})
	}
	for name := range funcs {
		if !used[name] {
			return Pipeline{}, fmt.Errorf("pipeline %s: step %s is not configured", pipeline, name)
		}
	}
	return Pipeline{Name: pipeline, Steps: steps}, nil
}

// WithBackoff returns a copy of d with every step's backoff replaced. Attempt
// limits are kept.
func (d *Definitions) WithBackoff(minB, maxB time.Duration) *Definitions {
	if d == nil {
		return nil
	}
	out := &Definitions{pipelines: make(map[string][]StepDef, len(d.pipelines))}
	for name, steps := range d.pipelines {
		cp := make([]StepDef, len(steps))
		for i, s := range steps {
			s.Retry.MinBackoff, s.Retry.MaxBackoff, s.Retry.JitterFrac = minB, maxB, 0
			cp[i] = s
		}
		out.pipelines[name] = cp
	}
	return out
}

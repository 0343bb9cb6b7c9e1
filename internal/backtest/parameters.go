package backtest

import (
	"crypto/sha256"
	"fmt"
	"math"
	"os"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/tradelab/internal/strategy"
)

// maxCombinations caps the size of an expanded parameter grid
const maxCombinations = 1_000_000

// Parameter is one optimizable dimension: either an explicit list of values
// or an inclusive numeric range walked by Step.
type Parameter struct {
	Name   string  `yaml:"name" json:"name"`
	Min    float64 `yaml:"min" json:"min"`
	Max    float64 `yaml:"max" json:"max"`
	Step   float64 `yaml:"step" json:"step"`
	Values []any   `yaml:"values" json:"values,omitempty"`
}

// Validate checks the parameter definition
func (p Parameter) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("parameter name is required")
	}
	if len(p.Values) > 0 {
		return nil
	}
	if p.Step <= 0 {
		return fmt.Errorf("parameter %s: step must be positive", p.Name)
	}
	if p.Max < p.Min {
		return fmt.Errorf("parameter %s: max %.6g below min %.6g", p.Name, p.Max, p.Min)
	}
	return nil
}

// Expand returns the candidate values of the parameter. Ranges are built by
// repeated addition of Step, so values may carry floating-point drift; the
// upper bound is included within a tolerance of Step*1e-9.
func (p Parameter) Expand() ([]any, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(p.Values) > 0 {
		out := make([]any, len(p.Values))
		copy(out, p.Values)
		return out, nil
	}
	tolerance := p.Step * 1e-9
	var out []any
	for v := p.Min; v <= p.Max+tolerance; v += p.Step {
		if math.Abs(v-p.Max) <= tolerance {
			v = p.Max
		}
		out = append(out, v)
		if len(out) > maxCombinations {
			return nil, fmt.Errorf("parameter %s expands to more than %d values", p.Name, maxCombinations)
		}
	}
	return out, nil
}

// ParameterSpace is the set of dimensions an optimizer searches
type ParameterSpace struct {
	Parameters []Parameter `yaml:"parameters" json:"parameters"`
}

// LoadParameterSpace reads a YAML parameter space file
func LoadParameterSpace(path string) (ParameterSpace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ParameterSpace{}, fmt.Errorf("failed to read parameter space: %w", err)
	}
	var space ParameterSpace
	if err := yaml.Unmarshal(data, &space); err != nil {
		return ParameterSpace{}, fmt.Errorf("failed to parse parameter space: %w", err)
	}
	return space, space.Validate()
}

// Validate checks every parameter and rejects duplicate names
func (s ParameterSpace) Validate() error {
	if len(s.Parameters) == 0 {
		return fmt.Errorf("parameter space is empty")
	}
	seen := make(map[string]struct{}, len(s.Parameters))
	for _, p := range s.Parameters {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate parameter %s", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

func (s ParameterSpace) expand() ([][]any, int, error) {
	if err := s.Validate(); err != nil {
		return nil, 0, err
	}
	values := make([][]any, len(s.Parameters))
	total := 1
	for i, p := range s.Parameters {
		v, err := p.Expand()
		if err != nil {
			return nil, 0, err
		}
		values[i] = v
		total *= len(v)
		if total > maxCombinations {
			return nil, 0, fmt.Errorf("parameter space exceeds %d combinations", maxCombinations)
		}
	}
	return values, total, nil
}

// Size returns the number of grid combinations
func (s ParameterSpace) Size() (int, error) {
	_, total, err := s.expand()
	return total, err
}

// Grid returns the cartesian product of all parameter values. The first
// parameter is the outermost loop.
func (s ParameterSpace) Grid() ([]strategy.Params, error) {
	values, total, err := s.expand()
	if err != nil {
		return nil, err
	}
	out := make([]strategy.Params, 0, total)
	current := make(strategy.Params, len(s.Parameters))
	var walk func(depth int)
	walk = func(depth int) {
		if depth == len(s.Parameters) {
			out = append(out, current.Merge(nil))
			return
		}
		for _, v := range values[depth] {
			current[s.Parameters[depth].Name] = v
			walk(depth + 1)
		}
	}
	walk(0)
	return out, nil
}

// Sample draws n distinct combinations with a seeded source. When n covers
// the whole grid the full grid is returned.
func (s ParameterSpace) Sample(n int, seed int64) ([]strategy.Params, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample count must be positive")
	}
	values, total, err := s.expand()
	if err != nil {
		return nil, err
	}
	if n >= total {
		return s.Grid()
	}
	rng := newRand(seed)
	seen := make(map[string]struct{}, n)
	out := make([]strategy.Params, 0, n)
	for attempts := 0; len(out) < n && attempts < n*100; attempts++ {
		params := make(strategy.Params, len(s.Parameters))
		for i, p := range s.Parameters {
			params[p.Name] = values[i][rng.Intn(len(values[i]))]
		}
		key := HashParameters(params)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, params)
	}
	return out, nil
}

// HashParameters creates a stable hash for parameter maps
func HashParameters(params map[string]any) string {
	data, _ := json.Marshal(params)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

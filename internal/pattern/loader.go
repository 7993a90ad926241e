package pattern

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"graphrag/internal/logging"
)

// patternFile is the YAML shape for user-supplied pattern catalogs.
type patternFile struct {
	Patterns []*Pattern `yaml:"patterns"`
}

// LoadFromYAML merges patterns from a YAML file into the library. The file
// may add new patterns or override built-ins by name. Any invalid pattern
// fails the whole load; configuration errors surface at startup, not at
// query time.
func (l *Library) LoadFromYAML(path string) (int, error) {
	timer := logging.StartTimer(logging.CategoryGenerator, "pattern.LoadFromYAML")
	defer timer.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pattern file %s: %w", path, err)
	}

	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse pattern file %s: %w", path, err)
	}

	for _, p := range file.Patterns {
		if err := p.Validate(); err != nil {
			return 0, fmt.Errorf("invalid pattern in %s: %w", path, err)
		}
	}
	for _, p := range file.Patterns {
		l.mu.Lock()
		l.patterns[p.Name] = p
		l.mu.Unlock()
	}

	logging.Generator("Loaded %d patterns from %s", len(file.Patterns), path)
	return len(file.Patterns), nil
}

// Instantiate renders a pattern's semantic template with concrete parameters.
// Required parameters must all be present; unknown parameters are rejected.
func (l *Library) Instantiate(name string, params map[string]interface{}) (string, error) {
	p, ok := l.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown pattern: %s", name)
	}

	declared := make(map[string]Parameter, len(p.Parameters))
	for _, param := range p.Parameters {
		declared[param.Name] = param
	}
	for name := range params {
		if _, ok := declared[name]; !ok {
			return "", fmt.Errorf("pattern %s: unknown parameter %s", p.Name, name)
		}
	}
	for _, param := range p.Parameters {
		if param.Required {
			if _, ok := params[param.Name]; !ok {
				return "", fmt.Errorf("pattern %s: missing required parameter %s", p.Name, param.Name)
			}
		}
	}

	sentence := p.SemanticTemplate
	for name, value := range params {
		sentence = strings.ReplaceAll(sentence, "{"+name+"}", fmt.Sprintf("%v", value))
	}
	return sentence, nil
}

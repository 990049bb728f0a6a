// Package roster loads the agent roster and remembers the display name used per session.
package roster

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Agent is one roster entry. Description is optional.
type Agent struct {
	Name        string
	Description string
}

// Names returns the agent names in roster order.
func Names(agents []Agent) []string {
	names := make([]string, 0, len(agents))
	for _, a := range agents {
		names = append(names, a.Name)
	}
	return names
}

// Parse reads a roster document. Two shapes are accepted: a mapping of name to description,
// whose order is preserved, or a sequence of names (or {name, description} objects).
// Blank and duplicate names (case-insensitive) are dropped.
func Parse(data []byte) ([]Agent, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]

	var agents []Agent
	switch root.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			key, val := root.Content[i], root.Content[i+1]
			agent := Agent{Name: key.Value}
			if val.Kind == yaml.ScalarNode && val.Tag != "!!null" {
				agent.Description = val.Value
			}
			agents = append(agents, agent)
		}
	case yaml.SequenceNode:
		for _, item := range root.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				agents = append(agents, Agent{Name: item.Value})
			case yaml.MappingNode:
				var entry struct {
					Name        string `yaml:"name"`
					Description string `yaml:"description"`
				}
				if err := item.Decode(&entry); err != nil {
					return nil, fmt.Errorf("roster line %d: %w", item.Line, err)
				}
				agents = append(agents, Agent{Name: entry.Name, Description: entry.Description})
			default:
				return nil, fmt.Errorf("roster line %d: unsupported entry", item.Line)
			}
		}
	case yaml.ScalarNode:
		if root.Tag == "!!null" {
			return nil, nil
		}
		return nil, errors.New("parse roster: expected a mapping or a list")
	default:
		return nil, errors.New("parse roster: expected a mapping or a list")
	}
	return dedupe(agents), nil
}

func dedupe(agents []Agent) []Agent {
	seen := map[string]bool{}
	out := agents[:0]
	for _, a := range agents {
		a.Name = strings.TrimSpace(a.Name)
		a.Description = strings.TrimSpace(a.Description)
		key := strings.ToLower(a.Name)
		if a.Name == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

// Load reads and parses a roster file.
func Load(path string) ([]Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return Parse(data)
}

// FromList builds a roster from comma-separated names, as given on the command line.
func FromList(list []string) []Agent {
	var agents []Agent
	for _, item := range list {
		for _, name := range strings.Split(item, ",") {
			agents = append(agents, Agent{Name: name})
		}
	}
	return dedupe(agents)
}

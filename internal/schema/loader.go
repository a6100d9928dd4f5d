package schema

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/spherical/account-planner/internal/domain"
)

//go:embed account_plan.yaml
var accountPlanYAML []byte

var canonical = sync.OnceValue(func() *Node {
	n, err := Load(accountPlanYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded account plan schema: %v", err))
	}
	return n
})

// Get returns a fresh deep copy of the canonical account-plan schema.
func Get() *Node {
	return canonical().Clone()
}

// LoadFile reads a schema document from disk. An empty path yields the
// embedded canonical schema.
func LoadFile(path string) (*Node, error) {
	if path == "" {
		return Get(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.ConfigError("read schema file", err)
	}
	return Load(data)
}

// Load parses a YAML schema document. Mappings become object nodes,
// single-item sequences become list nodes whose item is the template
// element, and scalars become leaves whose value is the placeholder.
func Load(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, domain.ConfigError("parse schema", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, domain.ConfigError("schema document is empty", nil)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, domain.ConfigError("schema root must be a mapping", nil)
	}
	n, err := fromYAML(root, "")
	if err != nil {
		return nil, domain.ConfigError("build schema", err)
	}
	return n, nil
}

func fromYAML(y *yaml.Node, path string) (*Node, error) {
	switch y.Kind {
	case yaml.MappingNode:
		fields := make([]Field, 0, len(y.Content)/2)
		seen := make(map[string]bool, len(y.Content)/2)
		for i := 0; i+1 < len(y.Content); i += 2 {
			key := y.Content[i]
			if key.Kind != yaml.ScalarNode || strings.TrimSpace(key.Value) == "" {
				return nil, fmt.Errorf("%s: line %d: field names must be non-empty scalars", where(path), key.Line)
			}
			if seen[key.Value] {
				return nil, fmt.Errorf("%s: line %d: duplicate field %q", where(path), key.Line, key.Value)
			}
			seen[key.Value] = true
			child, err := fromYAML(y.Content[i+1], join(path, key.Value))
			if err != nil {
				return nil, err
			}
			fields = append(fields, Field{Name: key.Value, Node: child})
		}
		return Object(fields...), nil
	case yaml.SequenceNode:
		if len(y.Content) != 1 {
			return nil, fmt.Errorf("%s: line %d: list must have exactly one template element, has %d", where(path), y.Line, len(y.Content))
		}
		elem, err := fromYAML(y.Content[0], path+"[]")
		if err != nil {
			return nil, err
		}
		return List(elem), nil
	case yaml.ScalarNode:
		return Leaf(y.Value), nil
	case yaml.AliasNode:
		return nil, fmt.Errorf("%s: line %d: aliases are not supported", where(path), y.Line)
	default:
		return nil, fmt.Errorf("%s: line %d: unexpected node", where(path), y.Line)
	}
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func where(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}

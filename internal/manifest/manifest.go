// Package manifest loads YAML domain manifests: declarations of a domain's
// events and their parameter shapes. Declared shapes are documentation and
// introspection only; nothing on the wire path enforces them.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/codespacesh/domainwire/internal/domain"
)

// Manifest declares one domain and its events.
type Manifest struct {
	Domain string      `yaml:"domain"`
	Events []EventDecl `yaml:"events"`
}

// EventDecl declares a single event. Parameters is a JSON-schema document
// describing the event's parameter array.
type EventDecl struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Parameters  map[string]any `yaml:"parameters"`
}

// Load reads and validates a manifest file. Every declared parameter shape
// must compile as a JSON schema so a broken manifest fails at load time,
// not when someone introspects it.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if m.Domain == "" {
		return nil, fmt.Errorf("%s: manifest has no domain name", path)
	}
	for _, ev := range m.Events {
		if ev.Name == "" {
			return nil, fmt.Errorf("%s: event with no name in domain %q", path, m.Domain)
		}
		if ev.Parameters != nil {
			loader := gojsonschema.NewGoLoader(ev.Parameters)
			if _, err := gojsonschema.NewSchema(loader); err != nil {
				return nil, fmt.Errorf("%s: event %s.%s: invalid parameter schema: %w", path, m.Domain, ev.Name, err)
			}
		}
	}
	return &m, nil
}

// Apply registers the manifest's domain and event declarations.
func (m *Manifest) Apply(r *domain.Registry) error {
	r.RegisterDomain(m.Domain)
	for _, ev := range m.Events {
		var raw json.RawMessage
		if ev.Parameters != nil {
			data, err := json.Marshal(ev.Parameters)
			if err != nil {
				return fmt.Errorf("encoding schema for %s.%s: %w", m.Domain, ev.Name, err)
			}
			raw = data
		}
		r.RegisterEvent(m.Domain, ev.Name, domain.EventSpec{
			Description: ev.Description,
			Parameters:  raw,
		})
	}
	return nil
}

// RegisterCommands installs the manifest-related commands on the base
// domain: loading a manifest at runtime and checking sample parameters
// against a declared shape.
func RegisterCommands(r *domain.Registry) {
	r.RegisterCommand("base", "loadDomainManifest", domain.Handler{
		Async: func(_ context.Context, args []any) (any, error) {
			path, err := domain.StringArg(args, 0)
			if err != nil {
				return nil, err
			}
			m, err := Load(path)
			if err != nil {
				return nil, err
			}
			if err := m.Apply(r); err != nil {
				return nil, err
			}
			return m.Domain, nil
		},
	})

	r.RegisterCommand("base", "validateEvent", domain.Handler{
		Sync: func(args []any) (any, error) {
			domainName, err := domain.StringArg(args, 0)
			if err != nil {
				return nil, err
			}
			event, err := domain.StringArg(args, 1)
			if err != nil {
				return nil, err
			}
			if len(args) < 3 {
				return nil, fmt.Errorf("missing argument 2")
			}
			return ValidateSample(r, domainName, event, args[2])
		},
	})
}

// ValidationResult is the outcome of checking sample parameters against a
// declared event shape.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateSample checks sample against the declared parameter schema of
// (domainName, event). It is an explicit, opt-in check; event delivery
// itself never validates.
func ValidateSample(r *domain.Registry, domainName, event string, sample any) (*ValidationResult, error) {
	spec, ok := r.EventSpecFor(domainName, event)
	if !ok || spec.Parameters == nil {
		return nil, fmt.Errorf("no declared parameter shape for %s.%s", domainName, event)
	}
	res, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(spec.Parameters),
		gojsonschema.NewGoLoader(sample),
	)
	if err != nil {
		return nil, fmt.Errorf("validating against %s.%s schema: %w", domainName, event, err)
	}
	out := &ValidationResult{Valid: res.Valid()}
	for _, e := range res.Errors() {
		out.Errors = append(out.Errors, e.String())
	}
	return out, nil
}

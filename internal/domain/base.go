package domain

import "fmt"

// RegisterBase installs the built-in "base" domain: liveness and
// introspection commands every worker exposes.
func RegisterBase(r *Registry) {
	r.RegisterDomain("base")
	r.RegisterCommand("base", "ping", Handler{
		Sync: func(args []any) (any, error) {
			return "pong", nil
		},
	})
	r.RegisterCommand("base", "getDomainDescriptions", Handler{
		Sync: func(args []any) (any, error) {
			return r.Descriptions(), nil
		},
	})
}

// StringArg extracts a required string at position i.
func StringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d: expected string, got %T", i, args[i])
	}
	return s, nil
}

// OptionalStringArg extracts a string at position i, returning def when the
// argument is absent or null.
func OptionalStringArg(args []any, i int, def string) (string, error) {
	if i >= len(args) || args[i] == nil {
		return def, nil
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d: expected string, got %T", i, args[i])
	}
	return s, nil
}

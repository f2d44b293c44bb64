package platdata

import (
	"errors"
	"fmt"
)

var (
	// ErrResolution is wrapped by failures to bind a node to drivers,
	// uclasses, phandle targets or aliases
	ErrResolution = errors.New("resolution error")

	// ErrSchema is wrapped when node properties cannot share one struct
	ErrSchema = errors.New("schema error")

	// ErrCommand is wrapped by an invalid command selection
	ErrCommand = errors.New("invalid command")
)

// ResolutionError names the node and, when relevant, the property that
// could not be resolved
type ResolutionError struct {
	Node string
	Prop string
	Msg  string
}

func (e *ResolutionError) Error() string {
	if e.Prop != "" {
		return fmt.Sprintf("node %s: property %s: %s", e.Node, e.Prop, e.Msg)
	}
	return fmt.Sprintf("node %s: %s", e.Node, e.Msg)
}

func (e *ResolutionError) Unwrap() error {
	return ErrResolution
}

func resolutionErr(node, prop, format string, args ...any) error {
	return &ResolutionError{Node: node, Prop: prop, Msg: fmt.Sprintf(format, args...)}
}

// SchemaError reports a property whose instances cannot be unified
type SchemaError struct {
	Struct string
	Node   string
	Prop   string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("struct %s: node %s: %v", e.Struct, e.Node, e.Err)
}

func (e *SchemaError) Unwrap() []error {
	return []error{ErrSchema, e.Err}
}

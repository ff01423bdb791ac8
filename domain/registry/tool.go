package registry

import "sort"

// ExampleCalls tolerates both shapes example calls appear in: a keyed map of
// named examples or a plain list. The composer emits either the sorted keys
// or the count; the shaper renders whichever shape is present.
type ExampleCalls struct {
	keyed map[string]any
	list  []any
}

// NewKeyedExamples creates ExampleCalls from a keyed map.
func NewKeyedExamples(m map[string]any) ExampleCalls {
	return ExampleCalls{keyed: m}
}

// NewListExamples creates ExampleCalls from a list.
func NewListExamples(l []any) ExampleCalls {
	return ExampleCalls{list: l}
}

// ExamplesFrom builds ExampleCalls from an untyped JSON value.
// Unrecognised shapes yield an empty ExampleCalls.
func ExamplesFrom(v any) ExampleCalls {
	switch t := v.(type) {
	case map[string]any:
		return NewKeyedExamples(t)
	case []any:
		return NewListExamples(t)
	default:
		return ExampleCalls{}
	}
}

// IsEmpty reports whether no examples are present.
func (e ExampleCalls) IsEmpty() bool {
	return len(e.keyed) == 0 && len(e.list) == 0
}

// Keys returns the sorted example keys, or nil for list-shaped examples.
func (e ExampleCalls) Keys() []string {
	if len(e.keyed) == 0 {
		return nil
	}
	keys := make([]string, 0, len(e.keyed))
	for k := range e.keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of examples in either shape.
func (e ExampleCalls) Count() int {
	if len(e.keyed) > 0 {
		return len(e.keyed)
	}
	return len(e.list)
}

// Value returns the underlying shape for serialization.
func (e ExampleCalls) Value() any {
	if e.keyed != nil {
		return e.keyed
	}
	if e.list != nil {
		return e.list
	}
	return nil
}

// Tool is a read projection of a single invokable operation of a service.
// Only active tools of active services are indexed.
type Tool struct {
	id           int64
	serviceID    int64
	serviceName  string
	name         string
	description  string
	inputSchema  map[string]any
	outputSchema map[string]any
	examples     ExampleCalls
	version      string
	active       bool
}

// ToolOption is a functional option for Tool.
type ToolOption func(*Tool)

// WithToolDescription sets the tool description.
func WithToolDescription(d string) ToolOption {
	return func(t *Tool) { t.description = d }
}

// WithInputSchema sets the input JSON schema.
func WithInputSchema(s map[string]any) ToolOption {
	return func(t *Tool) { t.inputSchema = s }
}

// WithOutputSchema sets the output JSON schema.
func WithOutputSchema(s map[string]any) ToolOption {
	return func(t *Tool) { t.outputSchema = s }
}

// WithExamples sets the example calls.
func WithExamples(e ExampleCalls) ToolOption {
	return func(t *Tool) { t.examples = e }
}

// WithToolVersion sets the tool version.
func WithToolVersion(v string) ToolOption {
	return func(t *Tool) { t.version = v }
}

// WithActive sets whether the tool is active.
func WithActive(active bool) ToolOption {
	return func(t *Tool) { t.active = active }
}

// NewTool creates a Tool belonging to the given parent service.
// Tools default to active.
func NewTool(id, serviceID int64, serviceName, name string, opts ...ToolOption) Tool {
	t := Tool{
		id:          id,
		serviceID:   serviceID,
		serviceName: serviceName,
		name:        name,
		active:      true,
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// ID returns the stable tool id.
func (t Tool) ID() int64 { return t.id }

// ServiceID returns the parent service id.
func (t Tool) ServiceID() int64 { return t.serviceID }

// ServiceName returns the parent service name.
func (t Tool) ServiceName() string { return t.serviceName }

// Name returns the tool name, unique within its parent.
func (t Tool) Name() string { return t.name }

// Description returns the tool description.
func (t Tool) Description() string { return t.description }

// InputSchema returns the input JSON schema.
func (t Tool) InputSchema() map[string]any { return t.inputSchema }

// OutputSchema returns the output JSON schema.
func (t Tool) OutputSchema() map[string]any { return t.outputSchema }

// Examples returns the example calls in either shape.
func (t Tool) Examples() ExampleCalls { return t.examples }

// Version returns the tool version.
func (t Tool) Version() string { return t.version }

// IsActive reports whether the tool is indexable.
func (t Tool) IsActive() bool { return t.active }

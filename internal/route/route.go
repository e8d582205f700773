package route

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Action is the closed set of operations a protected route performs.
type Action string

// Actions.
const (
	ActionListProducts Action = "ListProducts"
	ActionGetProduct   Action = "GetProduct"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionListProducts, ActionGetProduct:
		return true
	default:
		return false
	}
}

// String returns the action name.
func (a Action) String() string {
	return string(a)
}

// Resource types.
const (
	ResourceTypeProduct           = "Product"
	ResourceTypeProductCollection = "ProductCollection"
)

// Resource is the object an action targets. ID is set only when the
// route carries an identifying path parameter.
type Resource struct {
	Type string
	ID   string
}

// HasID reports whether the resource is a single identified item.
func (r Resource) HasID() bool {
	return r.ID != ""
}

// String returns "Type" or "Type:ID".
func (r Resource) String() string {
	if r.HasID() {
		return r.Type + ":" + r.ID
	}
	return r.Type
}

// Entry maps one protected route to its action and resource.
type Entry struct {
	Method   string
	Template string
	Action   Action

	ResourceType string
	// IDParam names the path parameter that identifies the resource.
	// Empty for collection routes.
	IDParam string

	// ContextQueryParams are query parameters copied into the evaluation
	// context.
	ContextQueryParams []string

	segments []segment
}

// Key returns "METHOD template".
func (e *Entry) Key() string {
	return routeKey(e.Method, e.Template)
}

type segment struct {
	value   string
	isParam bool
}

// parseTemplate splits a "/product/{id}" template into segments.
func parseTemplate(template string) []segment {
	parts := strings.Split(strings.Trim(template, "/"), "/")
	segments := make([]segment, 0, len(parts))

	for _, part := range parts {
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			segments = append(segments, segment{value: part[1 : len(part)-1], isParam: true})
			continue
		}
		segments = append(segments, segment{value: part})
	}

	return segments
}

func (e *Entry) params() []string {
	var names []string
	for _, s := range e.segments {
		if s.isParam {
			names = append(names, s.value)
		}
	}
	return names
}

func routeKey(method, template string) string {
	return strings.ToUpper(method) + " " + template
}

// GinPath converts a "{id}" template into gin's ":id" syntax.
func GinPath(template string) string {
	segments := parseTemplate(template)
	if len(segments) == 0 {
		return "/"
	}
	var sb strings.Builder
	for _, s := range segments {
		sb.WriteByte('/')
		if s.isParam {
			sb.WriteByte(':')
		}
		sb.WriteString(s.value)
	}
	return sb.String()
}

// TemplateFromGin converts gin's ":id" route syntax into a "{id}" template.
func TemplateFromGin(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	var sb strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		sb.WriteByte('/')
		if strings.HasPrefix(part, ":") {
			sb.WriteString("{" + part[1:] + "}")
			continue
		}
		sb.WriteString(part)
	}
	if sb.Len() == 0 {
		return "/"
	}
	return sb.String()
}

// DefaultEntries returns the protected routes of the catalog API.
func DefaultEntries() []Entry {
	return []Entry{
		{
			Method:       http.MethodGet,
			Template:     "/product",
			Action:       ActionListProducts,
			ResourceType: ResourceTypeProductCollection,
		},
		{
			Method:       http.MethodGet,
			Template:     "/product/{id}",
			Action:       ActionGetProduct,
			ResourceType: ResourceTypeProduct,
			IDParam:      "id",
		},
	}
}

func validateEntries(entries []Entry) error {
	seenKeys := make(map[string]bool, len(entries))
	seenActions := make(map[Action]string, len(entries))

	for i := range entries {
		e := &entries[i]
		if e.Method == "" || !strings.HasPrefix(e.Template, "/") {
			return fmt.Errorf("%w: entry %d needs a method and an absolute template", ErrInvalidTable, i)
		}
		if !e.Action.Valid() {
			return fmt.Errorf("%w: %s has unknown action %q", ErrInvalidTable, e.Key(), e.Action)
		}
		if e.ResourceType == "" {
			return fmt.Errorf("%w: %s has no resource type", ErrInvalidTable, e.Key())
		}
		if seenKeys[e.Key()] {
			return fmt.Errorf("%w: duplicate route %s", ErrInvalidTable, e.Key())
		}
		seenKeys[e.Key()] = true

		if other, ok := seenActions[e.Action]; ok {
			return fmt.Errorf("%w: action %s mapped by both %s and %s", ErrInvalidTable, e.Action, other, e.Key())
		}
		seenActions[e.Action] = e.Key()

		params := e.params()
		sort.Strings(params)
		switch {
		case e.IDParam == "" && len(params) > 0:
			return fmt.Errorf("%w: %s declares parameters %v but no identifying parameter", ErrInvalidTable, e.Key(), params)
		case e.IDParam != "" && (len(params) != 1 || params[0] != e.IDParam):
			return fmt.Errorf("%w: %s must declare exactly the parameter {%s}", ErrInvalidTable, e.Key(), e.IDParam)
		}
	}
	return nil
}

package route

import (
	"net/url"
	"sort"
)

// Input is the transport-independent view of a request that the table
// normalizes.
type Input struct {
	Method        string
	RouteTemplate string
	PathParams    map[string]string
	QueryParams   url.Values
}

// Result is the normalized action and resource of a request.
type Result struct {
	Action   Action
	Resource Resource
	// Context holds the query parameters the route copies into the
	// evaluation context. Never nil.
	Context map[string]string
}

// Declared is a route registered on the HTTP server.
type Declared struct {
	Method   string
	Template string
}

// Table is the static, read-only mapping from routes to actions. It is
// safe for concurrent use.
type Table struct {
	entries []Entry
	byKey   map[string]*Entry
}

// NewTable builds a table. Duplicate routes, unknown actions, an action
// mapped twice, or a template whose parameters disagree with IDParam are
// rejected.
func NewTable(entries ...Entry) (*Table, error) {
	cp := make([]Entry, len(entries))
	for i, e := range entries {
		e.ContextQueryParams = append([]string(nil), e.ContextQueryParams...)
		e.segments = parseTemplate(e.Template)
		cp[i] = e
	}

	if err := validateEntries(cp); err != nil {
		return nil, err
	}

	t := &Table{
		entries: cp,
		byKey:   make(map[string]*Entry, len(cp)),
	}
	for i := range t.entries {
		t.byKey[t.entries[i].Key()] = &t.entries[i]
	}
	return t, nil
}

// DefaultTable returns the table of the catalog API.
func DefaultTable() *Table {
	t, err := NewTable(DefaultEntries()...)
	if err != nil {
		panic(err)
	}
	return t
}

// Entries returns a copy of the table entries.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Lookup returns the entry for a method and route template.
func (t *Table) Lookup(method, template string) (Entry, bool) {
	e, ok := t.byKey[routeKey(method, template)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Normalize maps a request onto its action and resource. It performs no
// I/O and never defaults a missing identifier.
func (t *Table) Normalize(in Input) (Result, error) {
	e, ok := t.Lookup(in.Method, in.RouteTemplate)
	if !ok {
		return Result{}, &Error{Method: in.Method, Template: in.RouteTemplate, Cause: ErrUnknownRoute}
	}

	res := Result{
		Action:   e.Action,
		Resource: Resource{Type: e.ResourceType},
		Context:  make(map[string]string, len(e.ContextQueryParams)),
	}

	if e.IDParam != "" {
		id := in.PathParams[e.IDParam]
		if id == "" {
			return Result{}, &Error{
				Method:   in.Method,
				Template: in.RouteTemplate,
				Param:    e.IDParam,
				Cause:    ErrInvalidRequest,
			}
		}
		res.Resource.ID = id
	}

	for _, name := range e.ContextQueryParams {
		if v := in.QueryParams.Get(name); v != "" {
			res.Context[name] = v
		}
	}

	return res, nil
}

// Validate checks the table against the protected routes registered on
// the server: every registered route must be mapped and every table entry
// must be registered.
func (t *Table) Validate(declared []Declared) error {
	registered := make(map[string]bool, len(declared))
	verr := &ValidationError{}

	for _, d := range declared {
		key := routeKey(d.Method, d.Template)
		registered[key] = true
		if _, ok := t.byKey[key]; !ok {
			verr.Unmapped = append(verr.Unmapped, key)
		}
	}
	for i := range t.entries {
		if key := t.entries[i].Key(); !registered[key] {
			verr.Unregistered = append(verr.Unregistered, key)
		}
	}

	if len(verr.Unmapped) == 0 && len(verr.Unregistered) == 0 {
		return nil
	}
	sort.Strings(verr.Unmapped)
	sort.Strings(verr.Unregistered)
	return verr
}

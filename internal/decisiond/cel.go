package decisiond

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// newCELEnv declares the variables a policy condition can reference. They
// mirror the Rego input document.
func newCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("principal", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("action", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("resource", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("context", cel.MapType(cel.StringType, cel.StringType)),
	)
}

type celMatcher struct {
	program cel.Program
}

func compileCEL(env *cel.Env, expr string) (*celMatcher, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("condition must evaluate to bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	return &celMatcher{program: prg}, nil
}

func (m *celMatcher) Match(_ context.Context, input Input) (bool, error) {
	out, _, err := m.program.Eval(map[string]interface{}{
		"principal": map[string]interface{}{
			"type":       input.Principal.Type,
			"id":         input.Principal.ID,
			"attributes": nonNilMap(input.Principal.Attributes),
			"roles":      nonNilSlice(input.Principal.Roles),
		},
		"action":   map[string]string{"type": input.Action.Type, "id": input.Action.ID},
		"resource": map[string]string{"type": input.Resource.Type, "id": input.Resource.ID},
		"context":  nonNilMap(input.Context),
	})
	if err != nil {
		return false, err
	}

	v, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition is %T, want boolean", out.Value())
	}
	return v, nil
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

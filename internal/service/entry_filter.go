package service

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
	"github.com/google/cel-go/common/types/ref"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/shinyes/vidstore/internal/models"
	"github.com/shinyes/vidstore/internal/store"
)

// CELEntryFilter evaluates a CEL expression against file entries. Variables:
// path, name, size_bytes, content_type, source_url, storage_type, create_time and
// update_time (unix seconds).
type CELEntryFilter struct {
	program      cel.Program
	sqlPrefilter store.EntryPrefilter
}

func CompileEntryFilter(raw string) (*CELEntryFilter, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("path", decls.String),
			decls.NewVar("name", decls.String),
			decls.NewVar("size_bytes", decls.Int),
			decls.NewVar("content_type", decls.String),
			decls.NewVar("source_url", decls.String),
			decls.NewVar("storage_type", decls.String),
			decls.NewVar("create_time", decls.Int),
			decls.NewVar("update_time", decls.Int),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build CEL env: %w", err)
	}

	ast, issues := env.Compile(normalized)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid CEL filter: %w", issues.Err())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build CEL program: %w", err)
	}

	return &CELEntryFilter{
		program:      program,
		sqlPrefilter: deriveEntryPrefilter(ast.Expr()),
	}, nil
}

func (f *CELEntryFilter) Matches(entry models.FileEntry) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, _, err := f.program.Eval(map[string]any{
		"path":         entry.Path,
		"name":         entry.Name(),
		"size_bytes":   entry.Size,
		"content_type": entry.ContentType,
		"source_url":   entry.SourceURL,
		"storage_type": entry.StorageType,
		"create_time":  entry.CreateTime.Unix(),
		"update_time":  entry.UpdateTime.Unix(),
	})
	if err != nil {
		return false, fmt.Errorf("evaluate CEL filter: %w", err)
	}
	return asBool(out)
}

func (f *CELEntryFilter) SQLPrefilter() store.EntryPrefilter {
	if f == nil {
		return store.EmptyEntryPrefilter()
	}
	return f.sqlPrefilter
}

func asBool(v ref.Val) (bool, error) {
	switch val := v.Value().(type) {
	case bool:
		return val, nil
	default:
		return false, fmt.Errorf("filter expression must return bool, got %T", val)
	}
}

// deriveEntryPrefilter pushes equality and membership tests on path and
// content_type down to SQL. Anything it cannot express widens to no constraint.
func deriveEntryPrefilter(expr *exprpb.Expr) store.EntryPrefilter {
	if expr == nil {
		return store.EmptyEntryPrefilter()
	}
	if c := expr.GetConstExpr(); c != nil {
		if v, ok := constBool(c); ok && !v {
			return store.EntryPrefilter{Unsatisfiable: true}
		}
		return store.EmptyEntryPrefilter()
	}

	call := expr.GetCallExpr()
	if call == nil {
		return store.EmptyEntryPrefilter()
	}
	switch call.Function {
	case "_&&_":
		if len(call.Args) != 2 {
			return store.EmptyEntryPrefilter()
		}
		return mergeEntryPrefilterAnd(deriveEntryPrefilter(call.Args[0]), deriveEntryPrefilter(call.Args[1]))
	case "_||_":
		if len(call.Args) != 2 {
			return store.EmptyEntryPrefilter()
		}
		return mergeEntryPrefilterOr(deriveEntryPrefilter(call.Args[0]), deriveEntryPrefilter(call.Args[1]))
	case "_==_":
		if len(call.Args) != 2 {
			return store.EmptyEntryPrefilter()
		}
		name, c, ok := identAndConst(call.Args[0], call.Args[1])
		if !ok {
			name, c, ok = identAndConst(call.Args[1], call.Args[0])
		}
		if !ok {
			return store.EmptyEntryPrefilter()
		}
		s, ok := constString(c)
		if !ok {
			return store.EmptyEntryPrefilter()
		}
		return prefilterFor(name, []string{s})
	case "@in":
		if len(call.Args) != 2 {
			return store.EmptyEntryPrefilter()
		}
		id := call.Args[0].GetIdentExpr()
		list := call.Args[1].GetListExpr()
		if id == nil || list == nil {
			return store.EmptyEntryPrefilter()
		}
		values := make([]string, 0, len(list.Elements))
		for _, e := range list.Elements {
			s, ok := constString(e.GetConstExpr())
			if !ok {
				return store.EmptyEntryPrefilter()
			}
			values = append(values, s)
		}
		if len(values) == 0 {
			return store.EntryPrefilter{Unsatisfiable: true}
		}
		return prefilterFor(id.Name, values)
	default:
		return store.EmptyEntryPrefilter()
	}
}

func prefilterFor(name string, values []string) store.EntryPrefilter {
	switch name {
	case "content_type":
		return store.EntryPrefilter{ContentTypes: values}
	case "path":
		return store.EntryPrefilter{Paths: values}
	default:
		return store.EmptyEntryPrefilter()
	}
}

func mergeEntryPrefilterAnd(a store.EntryPrefilter, b store.EntryPrefilter) store.EntryPrefilter {
	if a.Unsatisfiable || b.Unsatisfiable {
		return store.EntryPrefilter{Unsatisfiable: true}
	}
	out := store.EmptyEntryPrefilter()
	out.ContentTypes, out.Unsatisfiable = intersectValues(a.ContentTypes, b.ContentTypes)
	if out.Unsatisfiable {
		return out
	}
	out.Paths, out.Unsatisfiable = intersectValues(a.Paths, b.Paths)
	return out
}

// mergeEntryPrefilterOr keeps a constraint only when both sides constrain the
// same single field.
func mergeEntryPrefilterOr(a store.EntryPrefilter, b store.EntryPrefilter) store.EntryPrefilter {
	if a.Unsatisfiable {
		return b
	}
	if b.Unsatisfiable {
		return a
	}
	switch {
	case len(a.Paths) == 0 && len(b.Paths) == 0 && len(a.ContentTypes) > 0 && len(b.ContentTypes) > 0:
		return store.EntryPrefilter{ContentTypes: unionValues(a.ContentTypes, b.ContentTypes)}
	case len(a.ContentTypes) == 0 && len(b.ContentTypes) == 0 && len(a.Paths) > 0 && len(b.Paths) > 0:
		return store.EntryPrefilter{Paths: unionValues(a.Paths, b.Paths)}
	default:
		return store.EmptyEntryPrefilter()
	}
}

func intersectValues(a []string, b []string) ([]string, bool) {
	if len(a) == 0 {
		return b, false
	}
	if len(b) == 0 {
		return a, false
	}
	out := make([]string, 0, len(a))
	for _, v := range a {
		if slices.Contains(b, v) && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, true
	}
	return out, false
}

func unionValues(a []string, b []string) []string {
	out := slices.Clone(a)
	for _, v := range b {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func identAndConst(left *exprpb.Expr, right *exprpb.Expr) (string, *exprpb.Constant, bool) {
	id := left.GetIdentExpr()
	if id == nil {
		return "", nil, false
	}
	c := right.GetConstExpr()
	if c == nil {
		return "", nil, false
	}
	return id.Name, c, true
}

func constString(c *exprpb.Constant) (string, bool) {
	if c == nil {
		return "", false
	}
	switch v := c.ConstantKind.(type) {
	case *exprpb.Constant_StringValue:
		return v.StringValue, true
	default:
		return "", false
	}
}

func constBool(c *exprpb.Constant) (bool, bool) {
	if c == nil {
		return false, false
	}
	switch v := c.ConstantKind.(type) {
	case *exprpb.Constant_BoolValue:
		return v.BoolValue, true
	default:
		return false, false
	}
}

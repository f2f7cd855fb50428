package graph

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/99designs/gqlgen/graphql"
	"github.com/mmdatafocus/manufacturing_backend/actions"
	"github.com/shopspring/decimal"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

//go:embed schema.graphqls
var schemaSource string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource})

type Config struct {
	Resolvers *Resolver
}

type executableSchema struct {
	resolvers map[string]fieldFunc
}

// NewExecutableSchema serves schema.graphqls through gqlgen's handler.
// Selections are projected onto the models by json tag; "Type.field" bindings override that.
func NewExecutableSchema(cfg Config) graphql.ExecutableSchema {
	r := cfg.Resolvers
	if r == nil {
		r = &Resolver{}
	}
	return &executableSchema{resolvers: r.bindings()}
}

func (e *executableSchema) Schema() *ast.Schema {
	return parsedSchema
}

func (e *executableSchema) Complexity(typeName, field string, childComplexity int, args map[string]interface{}) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)
	var root *ast.Definition
	switch opCtx.Operation.Operation {
	case ast.Query:
		root = parsedSchema.Query
	case ast.Mutation:
		root = parsedSchema.Mutation
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported operation type %s", opCtx.Operation.Operation))
	}

	first := true
	return func(ctx context.Context) *graphql.Response {
		if !first {
			return nil
		}
		first = false

		ex := &execution{schema: e, opCtx: opCtx}
		data := json.RawMessage("null")
		if obj, ok := ex.object(ctx, root, opCtx.Operation.SelectionSet, reflect.Value{}, nil); ok {
			encoded, err := json.Marshal(obj)
			if err != nil {
				return graphql.ErrorResponse(ctx, "encode response: %v", err)
			}
			data = encoded
		}
		return &graphql.Response{Data: data, Errors: ex.errs}
	}
}

type execution struct {
	schema *executableSchema
	opCtx  *graphql.OperationContext

	mu   sync.Mutex
	errs gqlerror.List
}

func (ex *execution) fail(path ast.Path, f graphql.CollectedField, err error) {
	gqlErr := &gqlerror.Error{
		Message:    err.Error(),
		Path:       path,
		Extensions: map[string]interface{}{"status": actions.StatusCode(err)},
	}
	if f.Field != nil && f.Position != nil {
		gqlErr.Locations = []gqlerror.Location{{Line: f.Position.Line, Column: f.Position.Column}}
	}
	ex.mu.Lock()
	ex.errs = append(ex.errs, gqlErr)
	ex.mu.Unlock()
}

// object resolves a selection set against one value. A false result means a non-null
// field failed and the object itself must become null.
func (ex *execution) object(ctx context.Context, def *ast.Definition, sel ast.SelectionSet, obj reflect.Value, path ast.Path) (*orderedObject, bool) {
	out := &orderedObject{}
	for _, f := range graphql.CollectFields(ex.opCtx, sel, []string{def.Name}) {
		fieldPath := appendPath(path, ast.PathName(f.Alias))
		switch f.Name {
		case "__typename":
			out.add(f.Alias, def.Name)
			continue
		case "__schema", "__type":
			ex.fail(fieldPath, f, errors.New("introspection is not supported"))
			out.add(f.Alias, nil)
			continue
		}

		v, err := ex.fieldValue(ctx, def, f, obj)
		if err != nil {
			ex.fail(fieldPath, f, err)
			if f.Definition.Type.NonNull {
				return nil, false
			}
			out.add(f.Alias, nil)
			continue
		}
		res, ok := ex.value(ctx, f, f.Definition.Type, v, fieldPath)
		if !ok {
			return nil, false
		}
		out.add(f.Alias, res)
	}
	return out, true
}

func (ex *execution) fieldValue(ctx context.Context, def *ast.Definition, f graphql.CollectedField, obj reflect.Value) (interface{}, error) {
	if fn, ok := ex.schema.resolvers[def.Name+"."+f.Name]; ok {
		args, err := coerceArguments(f.Definition.Arguments, f.ArgumentMap(ex.opCtx.Variables))
		if err != nil {
			return nil, err
		}
		var parent interface{}
		if obj.IsValid() {
			parent = pointerTo(obj)
		}
		return ex.resolve(ctx, def, f, args, func(ctx context.Context) (interface{}, error) {
			return fn(ctx, parent, args)
		})
	}
	if !obj.IsValid() {
		return nil, fmt.Errorf("%s.%s has no resolver", def.Name, f.Name)
	}
	v, ok := jsonField(obj, toSnake(f.Name))
	if !ok {
		return nil, fmt.Errorf("%s.%s is not available on %s", def.Name, f.Name, obj.Type())
	}
	return v.Interface(), nil
}

// resolve runs a bound resolver inside a field context so handler extensions such as tracing see it.
func (ex *execution) resolve(ctx context.Context, def *ast.Definition, f graphql.CollectedField, args map[string]interface{}, next graphql.Resolver) (res interface{}, err error) {
	fc := &graphql.FieldContext{
		Object:     def.Name,
		Field:      f,
		Args:       args,
		IsMethod:   true,
		IsResolver: true,
	}
	ctx = graphql.WithFieldContext(ctx, fc)
	defer func() {
		if r := recover(); r != nil {
			if ex.opCtx.RecoverFunc != nil {
				err = ex.opCtx.RecoverFunc(ctx, r)
			} else {
				err = fmt.Errorf("internal system error")
			}
			res = nil
		}
	}()

	if ex.opCtx.ResolverMiddleware != nil {
		res, err = ex.opCtx.ResolverMiddleware(ctx, next)
	} else {
		res, err = next(ctx)
	}
	fc.Result = res
	return res, err
}

// value converts a resolved Go value into its response form for typ.
func (ex *execution) value(ctx context.Context, f graphql.CollectedField, typ *ast.Type, v interface{}, path ast.Path) (interface{}, bool) {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			rv = reflect.Value{}
			break
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		if typ.NonNull {
			ex.fail(path, f, errors.New("must not be null"))
			return nil, false
		}
		return nil, true
	}

	if typ.Elem != nil {
		return ex.list(ctx, f, typ, rv, path)
	}

	def := parsedSchema.Types[typ.NamedType]
	var (
		res interface{}
		err error
	)
	switch def.Kind {
	case ast.Object:
		obj, ok := ex.object(ctx, def, f.Selections, rv, path)
		if !ok {
			return nil, !typ.NonNull
		}
		return obj, true
	case ast.Enum:
		res, err = enumValue(def, rv)
	default:
		res, err = scalarValue(def, rv)
	}
	if err != nil {
		ex.fail(path, f, err)
		return nil, !typ.NonNull
	}
	return res, true
}

// list resolves object elements concurrently so their loaders batch into one query per field.
func (ex *execution) list(ctx context.Context, f graphql.CollectedField, typ *ast.Type, rv reflect.Value, path ast.Path) (interface{}, bool) {
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		ex.fail(path, f, fmt.Errorf("expected a list, got %s", rv.Type()))
		return nil, !typ.NonNull
	}
	n := rv.Len()
	out := make([]interface{}, n)
	oks := make([]bool, n)
	project := func(i int) {
		out[i], oks[i] = ex.value(ctx, f, typ.Elem, rv.Index(i).Interface(), appendPath(path, ast.PathIndex(i)))
	}

	if def := parsedSchema.Types[typ.Elem.Name()]; def != nil && def.Kind == ast.Object && n > 1 {
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				project(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := 0; i < n; i++ {
			project(i)
		}
	}

	for _, ok := range oks {
		if !ok {
			return nil, !typ.NonNull
		}
	}
	return out, true
}

func enumValue(def *ast.Definition, rv reflect.Value) (interface{}, error) {
	if rv.Kind() != reflect.String {
		return nil, fmt.Errorf("cannot represent %s as %s", rv.Type(), def.Name)
	}
	s := rv.String()
	if def.EnumValues.ForName(s) == nil {
		return nil, fmt.Errorf("%q is not a valid %s", s, def.Name)
	}
	return s, nil
}

func scalarValue(def *ast.Definition, rv reflect.Value) (interface{}, error) {
	switch def.Name {
	case "Decimal":
		if d, ok := rv.Interface().(decimal.Decimal); ok {
			return marshalRaw(MarshalDecimal(d)), nil
		}
	case "Time":
		if t, ok := rv.Interface().(time.Time); ok {
			return marshalRaw(graphql.MarshalTime(t)), nil
		}
	case "Int":
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return rv.Uint(), nil
		}
	case "Float":
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			return rv.Float(), nil
		case reflect.Int, reflect.Int64:
			return float64(rv.Int()), nil
		}
	case "Boolean":
		if rv.Kind() == reflect.Bool {
			return rv.Bool(), nil
		}
	case "String", "ID":
		switch rv.Kind() {
		case reflect.String:
			return rv.String(), nil
		case reflect.Int, reflect.Int64:
			return strconv.FormatInt(rv.Int(), 10), nil
		}
	}
	return nil, fmt.Errorf("cannot represent %s as %s", rv.Type(), def.Name)
}

func marshalRaw(m graphql.Marshaler) json.RawMessage {
	var buf bytes.Buffer
	m.MarshalGQL(&buf)
	return buf.Bytes()
}

// coerceArguments turns argument values into the json shape the models decode:
// input object keys become snake_case and Decimal values become decimal strings.
func coerceArguments(defs ast.ArgumentDefinitionList, values map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(values))
	for name, v := range values {
		def := defs.ForName(name)
		if def == nil {
			continue
		}
		coerced, err := coerceInput(def.Type, v)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", name, err)
		}
		out[name] = coerced
	}
	return out, nil
}

func coerceInput(typ *ast.Type, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if typ.Elem != nil {
		items, ok := v.([]interface{})
		if !ok {
			item, err := coerceInput(typ.Elem, v)
			return []interface{}{item}, err
		}
		out := make([]interface{}, len(items))
		for i, item := range items {
			coerced, err := coerceInput(typ.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = coerced
		}
		return out, nil
	}

	def := parsedSchema.Types[typ.NamedType]
	switch {
	case def.Name == "Decimal":
		d, err := UnmarshalDecimal(v)
		if err != nil {
			return nil, err
		}
		return d.String(), nil
	case def.Kind == ast.InputObject:
		fields, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s must be an object", def.Name)
		}
		out := make(map[string]interface{}, len(fields))
		for name, fv := range fields {
			fieldDef := def.Fields.ForName(name)
			if fieldDef == nil {
				return nil, fmt.Errorf("unknown field %s.%s", def.Name, name)
			}
			coerced, err := coerceInput(fieldDef.Type, fv)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			if coerced != nil {
				out[toSnake(name)] = coerced
			}
		}
		return out, nil
	}
	return v, nil
}

// orderedObject keeps response keys in selection order.
type orderedObject struct {
	keys   []string
	values []interface{}
}

func (o *orderedObject) add(key string, v interface{}) {
	o.keys = append(o.keys, key)
	o.values = append(o.values, v)
}

func (o *orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

var jsonFieldCache sync.Map

// jsonField finds a struct field by its json tag name.
func jsonField(rv reflect.Value, name string) (reflect.Value, bool) {
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	index, ok := jsonFieldIndex(rv.Type())[name]
	if !ok {
		return reflect.Value{}, false
	}
	return rv.FieldByIndex(index), true
}

func jsonFieldIndex(t reflect.Type) map[string][]int {
	if cached, ok := jsonFieldCache.Load(t); ok {
		return cached.(map[string][]int)
	}
	index := make(map[string][]int)
	for _, sf := range reflect.VisibleFields(t) {
		if sf.Anonymous || !sf.IsExported() {
			continue
		}
		name := strings.Split(sf.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		index[name] = sf.Index
	}
	jsonFieldCache.Store(t, index)
	return index
}

func pointerTo(rv reflect.Value) interface{} {
	if rv.CanAddr() {
		return rv.Addr().Interface()
	}
	ptr := reflect.New(rv.Type())
	ptr.Elem().Set(rv)
	return ptr.Interface()
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func appendPath(path ast.Path, el ast.PathElement) ast.Path {
	out := make(ast.Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, el)
}

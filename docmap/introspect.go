package docmap

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/nonibytes/docmap/docmap/document"
)

const tagName = "docmap"

var registry = xsync.NewMapOf[reflect.Type, *Schema]()

// SchemaOf returns the schema of T, deriving it on first use.
func SchemaOf[T any]() (*Schema, error) {
	return Introspect(reflect.TypeFor[T]())
}

// Introspect derives the flat schema of a struct type. Exported fields are
// mapped; a field tagged `docmap:"-"` is skipped. The tag also renames a
// field and takes options:
//
//	text     index as full text instead of an exact keyword
//	textkey  text on the key side of a map only
//	textval  text on the value side of a map only
//	noindex  store without indexing; applies to nested fields too
//	chars    write a []rune as a single keyword
//	set      treat map[T]bool as a set of T
//
// Unsupported shapes fail with an ErrConfig error naming the field.
func Introspect(t reflect.Type) (*Schema, error) {
	if t == nil {
		return nil, ConfigError("", "nil type")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, ConfigError("", fmt.Sprintf("%s is not a struct", t))
	}
	if s, ok := registry.Load(t); ok {
		return s, nil
	}

	s := &Schema{typ: t, index: make(map[string]int)}
	in := &introspector{schema: s, visiting: map[reflect.Type]bool{t: true}}
	root, err := in.walk(t, "", false)
	if err != nil {
		return nil, err
	}
	if len(root) == 0 {
		return nil, ConfigError("", fmt.Sprintf("%s has no exported fields", t))
	}
	s.root = root
	actual, _ := registry.LoadOrStore(t, s)
	return actual, nil
}

type tagOptions struct {
	name    string
	skip    bool
	text    bool
	textKey bool
	textVal bool
	noIndex bool
	chars   bool
	set     bool
}

func parseTag(sf reflect.StructField, path string) (tagOptions, error) {
	opts := tagOptions{name: sf.Name}
	tag, ok := sf.Tag.Lookup(tagName)
	if !ok {
		return opts, nil
	}
	if tag == "-" {
		opts.skip = true
		return opts, nil
	}
	parts := strings.Split(tag, ",")
	if parts[0] != "" {
		opts.name = parts[0]
	}
	if strings.Contains(opts.name, ".") {
		return opts, ConfigError(path+opts.name, "field name must not contain '.'")
	}
	for _, o := range parts[1:] {
		switch strings.TrimSpace(o) {
		case "text":
			opts.text = true
		case "textkey":
			opts.textKey = true
		case "textval":
			opts.textVal = true
		case "noindex":
			opts.noIndex = true
		case "chars":
			opts.chars = true
		case "set":
			opts.set = true
		case "":
		default:
			return opts, ConfigError(path+opts.name, fmt.Sprintf("unknown tag option %q", o))
		}
	}
	return opts, nil
}

type introspector struct {
	schema   *Schema
	visiting map[reflect.Type]bool
}

func (in *introspector) walk(t reflect.Type, prefix string, noIndex bool) ([]*node, error) {
	var nodes []*node
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		opts, err := parseTag(sf, prefix)
		if err != nil {
			return nil, err
		}
		if opts.skip {
			continue
		}
		n, err := in.field(sf, prefix+opts.name, opts, noIndex || opts.noIndex)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (in *introspector) field(sf reflect.StructField, name string, opts tagOptions, noIndex bool) (*node, error) {
	n := &node{goName: sf.Name, name: name, index: sf.Index, typ: sf.Type}
	unsupported := func(what string) (*node, error) {
		return nil, ConfigError(name, fmt.Sprintf("unsupported field type %s: %s", sf.Type, what))
	}

	t := sf.Type
	switch {
	case t.Kind() == reflect.Pointer:
		e := t.Elem()
		switch {
		case isScalar(e):
			n.shape, n.ptr, n.elem = shapeScalar, true, e
		case e.Kind() == reflect.Struct:
			n.ptr = true
			return in.composite(n, e, opts, noIndex)
		default:
			return unsupported("pointer to " + e.Kind().String())
		}
	case isScalar(t):
		n.shape, n.elem = shapeScalar, t
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Int32 && opts.chars:
		n.shape, n.elem = shapeChars, t.Elem()
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		n.shape, n.elem = shapeBytes, t.Elem()
	case t.Kind() == reflect.Slice || t.Kind() == reflect.Array:
		if !isScalar(t.Elem()) {
			return unsupported("elements must be scalars")
		}
		n.shape, n.elem = shapeList, t.Elem()
	case t.Kind() == reflect.Map:
		k, v := t.Key(), t.Elem()
		if !isScalar(k) {
			return unsupported("map keys must be scalars")
		}
		switch {
		case v.Kind() == reflect.Struct && v.NumField() == 0,
			opts.set && v.Kind() == reflect.Bool:
			n.shape, n.elem = shapeSet, k
		case isScalar(v):
			n.shape, n.elem, n.val = shapeMap, k, v
		default:
			return unsupported("map values must be scalars")
		}
	case t.Kind() == reflect.Struct:
		return in.composite(n, t, opts, noIndex)
	default:
		return unsupported(t.Kind().String())
	}

	if opts.chars && n.shape != shapeChars {
		return nil, ConfigError(name, "chars needs a []rune field")
	}
	if opts.set && n.shape != shapeSet {
		return nil, ConfigError(name, "set needs a map[T]bool field")
	}
	if (opts.textKey || opts.textVal) && n.shape != shapeMap {
		return nil, ConfigError(name, "textkey and textval need a map field")
	}

	switch n.shape {
	case shapeChars:
		n.kind = document.Keyword
	case shapeBytes:
		n.kind = document.Stored
	default:
		n.kind, _ = scalarKind(n.elem)
	}

	if n.shape == shapeMap {
		n.valKind, _ = scalarKind(n.val)
		if opts.text || opts.textKey {
			n.kind = document.Text
		}
		if opts.text || opts.textVal {
			n.valKind = document.Text
		}
		if noIndex {
			n.kind, n.valKind = document.Stored, document.Stored
		}
		if err := in.register(name+".key", n.kind, Multiple); err != nil {
			return nil, err
		}
		n.field = in.schema.Len() - 1
		if err := in.register(name+".val", n.valKind, Multiple); err != nil {
			return nil, err
		}
		return n, nil
	}

	if opts.text && n.shape != shapeBytes {
		n.kind = document.Text
	}
	if noIndex {
		n.kind = document.Stored
	}
	mult := Single
	if n.shape == shapeList || n.shape == shapeSet {
		mult = Multiple
	}
	if err := in.register(name, n.kind, mult); err != nil {
		return nil, err
	}
	n.field = in.schema.Len() - 1
	return n, nil
}

func (in *introspector) composite(n *node, st reflect.Type, opts tagOptions, noIndex bool) (*node, error) {
	if opts.text || opts.textKey || opts.textVal || opts.chars || opts.set {
		return nil, ConfigError(n.name, "text, chars and set options apply to leaf fields only")
	}
	if in.visiting[st] {
		return nil, ConfigError(n.name, fmt.Sprintf("recursive type %s", st))
	}
	in.visiting[st] = true
	defer delete(in.visiting, st)

	children, err := in.walk(st, n.name+".", noIndex)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, ConfigError(n.name, fmt.Sprintf("%s has no exported fields", st))
	}
	n.shape = shapeStruct
	n.children = children
	n.factory = func() reflect.Value { return reflect.New(st) }
	n.field = -1
	return n, nil
}

func (in *introspector) register(name string, kind document.Kind, mult Multiplicity) error {
	if _, dup := in.schema.index[name]; dup {
		return ConfigError(name, "duplicate field name")
	}
	in.schema.add(FieldSchema{Name: name, Kind: kind, Stored: true, Multiplicity: mult})
	return nil
}

func isScalar(t reflect.Type) bool {
	_, ok := scalarKind(t)
	return ok
}

// scalarKind maps a Go scalar to the document kind it is indexed as.
func scalarKind(t reflect.Type) (document.Kind, bool) {
	switch t.Kind() {
	case reflect.String:
		return document.Keyword, true
	case reflect.Float64:
		return document.Double, true
	case reflect.Float32:
		return document.Float, true
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16, reflect.Bool:
		return document.Int, true
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return document.Long, true
	default:
		return 0, false
	}
}

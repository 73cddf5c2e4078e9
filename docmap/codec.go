package docmap

import (
	"cmp"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/nonibytes/docmap/docmap/document"
)

// Codec converts between values of T and flat documents.
type Codec[T any] struct {
	schema *Schema
	opts   CodecOptions
}

// NewCodec introspects T and returns a codec for it.
func NewCodec[T any](opts CodecOptions) (*Codec[T], error) {
	s, err := SchemaOf[T]()
	if err != nil {
		return nil, err
	}
	return &Codec[T]{schema: s, opts: opts}, nil
}

func (c *Codec[T]) Schema() *Schema { return c.schema }

// Encode flattens obj into a document. Nil pointers, slices and maps are
// left out.
func (c *Codec[T]) Encode(obj *T) (document.Document, error) {
	if obj == nil {
		return nil, New(ErrConfig, "cannot encode a nil object")
	}
	var doc document.Document
	if err := encodeNodes(&doc, c.schema.root, reflect.ValueOf(obj).Elem()); err != nil {
		return nil, err
	}
	return doc, nil
}

func encodeNodes(doc *document.Document, nodes []*node, sv reflect.Value) error {
	for _, n := range nodes {
		fv := sv.FieldByIndex(n.index)
		switch n.shape {
		case shapeScalar:
			if n.ptr {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			*doc = append(*doc, scalarField(n.name, n.kind, fv))
		case shapeChars:
			if fv.IsNil() {
				continue
			}
			*doc = append(*doc, document.Field{Name: n.name, Kind: n.kind, Value: runesString(fv)})
		case shapeBytes:
			if fv.IsNil() {
				continue
			}
			*doc = append(*doc, document.Field{Name: n.name, Kind: document.Stored, Value: slices.Clone(fv.Bytes())})
		case shapeList:
			if fv.Kind() == reflect.Slice && fv.IsNil() {
				continue
			}
			for i := 0; i < fv.Len(); i++ {
				*doc = append(*doc, scalarField(n.name, n.kind, fv.Index(i)))
			}
		case shapeSet:
			if fv.IsNil() {
				continue
			}
			for _, k := range sortedKeys(fv) {
				if fv.Type().Elem().Kind() == reflect.Bool && !fv.MapIndex(k).Bool() {
					continue
				}
				*doc = append(*doc, scalarField(n.name, n.kind, k))
			}
		case shapeMap:
			if fv.IsNil() {
				continue
			}
			for _, k := range sortedKeys(fv) {
				*doc = append(*doc,
					scalarField(n.name+".key", n.kind, k),
					scalarField(n.name+".val", n.valKind, fv.MapIndex(k)))
			}
		case shapeStruct:
			if n.ptr {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if err := encodeNodes(doc, n.children, fv); err != nil {
				return err
			}
		default:
			return ConfigError(n.name, fmt.Sprintf("unknown shape %d", n.shape))
		}
	}
	return nil
}

// scalarField converts a scalar value to a field of kind. Text and Stored
// fields hold the string form of the value.
func scalarField(name string, kind document.Kind, v reflect.Value) document.Field {
	f := document.Field{Name: name, Kind: kind}
	switch kind {
	case document.Double:
		f.Value = v.Float()
	case document.Float:
		f.Value = float32(v.Float())
	case document.Int:
		f.Value = int32(intValue(v))
	case document.Long:
		f.Value = intValue(v)
	case document.Keyword, document.Text, document.Stored:
		f.Value = scalarString(v)
	}
	return f
}

func intValue(v reflect.Value) int64 {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		// uint64 values above MaxInt64 wrap; decoding restores them.
		return int64(v.Uint())
	default:
		return v.Int()
	}
}

func scalarString(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Bool:
		if v.Bool() {
			return "1"
		}
		return "0"
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	default:
		return strconv.FormatInt(v.Int(), 10)
	}
}

func runesString(v reflect.Value) string {
	var sb strings.Builder
	for i := 0; i < v.Len(); i++ {
		sb.WriteRune(rune(v.Index(i).Int()))
	}
	return sb.String()
}

// sortedKeys returns map keys in value order so documents are deterministic.
func sortedKeys(m reflect.Value) []reflect.Value {
	keys := m.MapKeys()
	slices.SortFunc(keys, compareScalar)
	return keys
}

func compareScalar(a, b reflect.Value) int {
	switch a.Kind() {
	case reflect.String:
		return strings.Compare(a.String(), b.String())
	case reflect.Bool:
		return cmp.Compare(intValue(a), intValue(b))
	case reflect.Float32, reflect.Float64:
		return cmp.Compare(a.Float(), b.Float())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cmp.Compare(a.Uint(), b.Uint())
	default:
		return cmp.Compare(a.Int(), b.Int())
	}
}

// Decode rebuilds a T from doc. Decoding is best effort: fields that cannot
// be converted are left unset and reported in an ErrDecode error, and the
// partial object is still returned.
func (c *Codec[T]) Decode(doc document.Document) (*T, error) {
	obj := new(T)
	byName := make(map[string][]document.Field, len(doc))
	for _, f := range doc {
		byName[f.Name] = append(byName[f.Name], f)
	}
	d := decoder{opts: c.opts, byName: byName}
	d.nodes(c.schema.root, reflect.ValueOf(obj).Elem())
	if len(d.errs) > 0 {
		return obj, &Error{
			Kind:    ErrDecode,
			Message: fmt.Sprintf("decode %s", c.schema.typ),
			Cause:   errors.Join(d.errs...),
		}
	}
	return obj, nil
}

type decoder struct {
	opts   CodecOptions
	byName map[string][]document.Field
	errs   []error
}

func (d *decoder) fail(name string, err error) {
	d.errs = append(d.errs, DecodeError(name, "cannot convert stored value", err))
}

func (d *decoder) nodes(nodes []*node, sv reflect.Value) {
	for _, n := range nodes {
		fv := sv.FieldByIndex(n.index)
		switch n.shape {
		case shapeScalar:
			fs := d.byName[n.name]
			if len(fs) == 0 {
				continue
			}
			if !n.ptr {
				if err := setScalar(fv, fs[0]); err != nil {
					d.fail(n.name, err)
				}
				continue
			}
			p := reflect.New(n.elem)
			if err := setScalar(p.Elem(), fs[0]); err != nil {
				d.fail(n.name, err)
				continue
			}
			fv.Set(p)
		case shapeChars:
			fs := d.byName[n.name]
			if len(fs) == 0 {
				continue
			}
			s, ok := fs[0].Value.(string)
			if !ok {
				d.fail(n.name, fmt.Errorf("expected string, got %T", fs[0].Value))
				continue
			}
			fv.Set(reflect.ValueOf([]rune(s)).Convert(fv.Type()))
		case shapeBytes:
			fs := d.byName[n.name]
			if len(fs) == 0 {
				if d.opts.InitializeEmptyMultiples {
					fv.SetBytes([]byte{})
				}
				continue
			}
			switch b := fs[0].Value.(type) {
			case []byte:
				fv.SetBytes(slices.Clone(b))
			case string:
				fv.SetBytes([]byte(b))
			default:
				d.fail(n.name, fmt.Errorf("expected bytes, got %T", b))
			}
		case shapeList:
			d.list(n, fv)
		case shapeSet:
			fs := d.byName[n.name]
			if len(fs) == 0 && !d.opts.InitializeEmptyMultiples {
				continue
			}
			m := reflect.MakeMapWithSize(fv.Type(), len(fs))
			member := reflect.New(fv.Type().Elem()).Elem()
			if member.Kind() == reflect.Bool {
				member.SetBool(true)
			}
			for _, f := range fs {
				k := reflect.New(n.elem).Elem()
				if err := setScalar(k, f); err != nil {
					d.fail(n.name, err)
					continue
				}
				m.SetMapIndex(k, member)
			}
			fv.Set(m)
		case shapeMap:
			d.mapField(n, fv)
		case shapeStruct:
			if !n.ptr {
				d.nodes(n.children, fv)
				continue
			}
			if !d.opts.InitializeEmptyObject && !d.present(n) {
				continue
			}
			p := n.factory()
			d.nodes(n.children, p.Elem())
			fv.Set(p)
		}
	}
}

func (d *decoder) list(n *node, fv reflect.Value) {
	fs := d.byName[n.name]
	if fv.Kind() == reflect.Array {
		if len(fs) > fv.Len() {
			d.fail(n.name, fmt.Errorf("%d values for an array of %d", len(fs), fv.Len()))
		}
		for i := 0; i < len(fs) && i < fv.Len(); i++ {
			if err := setScalar(fv.Index(i), fs[i]); err != nil {
				d.fail(n.name, err)
			}
		}
		return
	}
	if len(fs) == 0 && !d.opts.InitializeEmptyMultiples {
		return
	}
	s := reflect.MakeSlice(fv.Type(), len(fs), len(fs))
	for i, f := range fs {
		if err := setScalar(s.Index(i), f); err != nil {
			d.fail(n.name, err)
		}
	}
	fv.Set(s)
}

func (d *decoder) mapField(n *node, fv reflect.Value) {
	keys := d.byName[n.name+".key"]
	vals := d.byName[n.name+".val"]
	if len(keys) == 0 && !d.opts.InitializeEmptyMultiples {
		return
	}
	if len(keys) != len(vals) {
		d.fail(n.name, fmt.Errorf("%d keys but %d values", len(keys), len(vals)))
	}
	m := reflect.MakeMapWithSize(fv.Type(), len(keys))
	for i := 0; i < len(keys) && i < len(vals); i++ {
		k := reflect.New(n.elem).Elem()
		v := reflect.New(n.val).Elem()
		if err := setScalar(k, keys[i]); err != nil {
			d.fail(n.name+".key", err)
			continue
		}
		if err := setScalar(v, vals[i]); err != nil {
			d.fail(n.name+".val", err)
			continue
		}
		m.SetMapIndex(k, v)
	}
	fv.Set(m)
}

// present reports whether any field below n is in the document.
func (d *decoder) present(n *node) bool {
	switch n.shape {
	case shapeStruct:
		for _, c := range n.children {
			if d.present(c) {
				return true
			}
		}
		return false
	case shapeMap:
		return len(d.byName[n.name+".key"]) > 0
	default:
		return len(d.byName[n.name]) > 0
	}
}

// setScalar stores a field value into dst, converting between the stored
// representation and the Go type of dst.
func setScalar(dst reflect.Value, f document.Field) error {
	switch v := f.Value.(type) {
	case string:
		return setFromString(dst, v)
	case float64:
		return setFloat(dst, v)
	case float32:
		return setFloat(dst, float64(v))
	case int32:
		return setInt(dst, int64(v))
	case int64:
		return setInt(dst, v)
	case []byte:
		return setFromString(dst, string(v))
	default:
		return fmt.Errorf("unsupported value %T", v)
	}
}

func setFloat(dst reflect.Value, v float64) error {
	switch dst.Kind() {
	case reflect.Float32, reflect.Float64:
		dst.SetFloat(v)
		return nil
	default:
		return fmt.Errorf("cannot store float %v in %s", v, dst.Type())
	}
}

func setInt(dst reflect.Value, v int64) error {
	switch dst.Kind() {
	case reflect.Bool:
		dst.SetBool(v != 0)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if dst.OverflowInt(v) {
			return fmt.Errorf("%d overflows %s", v, dst.Type())
		}
		dst.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := uint64(v)
		if dst.OverflowUint(u) {
			return fmt.Errorf("%d overflows %s", v, dst.Type())
		}
		dst.SetUint(u)
	default:
		return fmt.Errorf("cannot store integer %d in %s", v, dst.Type())
	}
	return nil
}

func setFromString(dst reflect.Value, s string) error {
	switch dst.Kind() {
	case reflect.String:
		dst.SetString(s)
	case reflect.Bool:
		dst.SetBool(s == "1" || s == "true")
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(s, 10, dst.Type().Bits())
		if err != nil {
			return err
		}
		dst.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(s, 10, dst.Type().Bits())
		if err != nil {
			return err
		}
		dst.SetUint(v)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(s, dst.Type().Bits())
		if err != nil {
			return err
		}
		dst.SetFloat(v)
	default:
		return fmt.Errorf("cannot store %q in %s", s, dst.Type())
	}
	return nil
}

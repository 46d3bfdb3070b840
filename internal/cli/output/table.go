package output

import (
	"encoding"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

// TableFormatter formats data as aligned text columns.
type TableFormatter struct {
	NoHeaders bool
}

// Format renders a *Table directly. A struct becomes a FIELD/VALUE table with
// nested fields flattened to dotted names; a slice of structs becomes one row
// per element; a map becomes a sorted KEY/VALUE table.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	if data == nil {
		return nil
	}
	switch t := data.(type) {
	case *Table:
		return t.RenderWithOptions(w, f.NoHeaders)
	case Table:
		return t.RenderWithOptions(w, f.NoHeaders)
	}

	table, err := toTable(reflect.ValueOf(data))
	if err != nil {
		return (&JSONFormatter{}).Format(w, data)
	}
	return table.RenderWithOptions(w, f.NoHeaders)
}

type field struct {
	name  string
	value string
}

func toTable(v reflect.Value) (*Table, error) {
	v = deref(v)
	if !v.IsValid() {
		return &Table{}, nil
	}
	switch v.Kind() {
	case reflect.Struct:
		t := &Table{Headers: []string{"FIELD", "VALUE"}}
		for _, f := range flatten("", v) {
			t.AddRow(f.name, f.value)
		}
		return t, nil
	case reflect.Slice, reflect.Array:
		return sliceToTable(v)
	case reflect.Map:
		t := &Table{Headers: []string{"KEY", "VALUE"}}
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j]) })
		for _, k := range keys {
			t.AddRow(fmt.Sprint(k.Interface()), scalar(v.MapIndex(k)))
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", v.Kind())
	}
}

func sliceToTable(v reflect.Value) (*Table, error) {
	t := &Table{}
	if v.Len() == 0 {
		return t, nil
	}
	if first := deref(v.Index(0)); first.Kind() != reflect.Struct || isLeaf(first) {
		t.Headers = []string{"VALUE"}
		for i := 0; i < v.Len(); i++ {
			t.AddRow(scalar(v.Index(i)))
		}
		return t, nil
	}
	for i := 0; i < v.Len(); i++ {
		fields := flatten("", deref(v.Index(i)))
		if i == 0 {
			for _, f := range fields {
				t.Headers = append(t.Headers, strings.ToUpper(f.name))
			}
		}
		row := make([]string, len(fields))
		for j, f := range fields {
			row[j] = f.value
		}
		t.AddRow(row...)
	}
	return t, nil
}

// flatten lists the leaves of a struct in field order.
func flatten(prefix string, v reflect.Value) []field {
	var out []field
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, ok := fieldName(sf)
		if !ok {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		fv := v.Field(i)
		if inner := deref(fv); inner.IsValid() && inner.Kind() == reflect.Struct && !isLeaf(inner) {
			out = append(out, flatten(name, inner)...)
			continue
		}
		out = append(out, field{name: name, value: scalar(fv)})
	}
	return out
}

func fieldName(sf reflect.StructField) (string, bool) {
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, true
	}
	return sf.Name, true
}

var (
	textMarshaler = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	stringer      = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	timeType      = reflect.TypeOf(time.Time{})
)

// isLeaf reports whether a struct prints as a single value.
func isLeaf(v reflect.Value) bool {
	t := v.Type()
	return t == timeType || t.Implements(textMarshaler) || t.Implements(stringer)
}

func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// scalar formats a leaf value. Floats keep six significant digits so that
// lengths in meters stay readable.
func scalar(v reflect.Value) string {
	v = deref(v)
	if !v.IsValid() {
		return "-"
	}
	if v.Type() == timeType {
		t := v.Interface().(time.Time)
		if t.IsZero() {
			return "-"
		}
		return t.Format(time.RFC3339)
	}
	if v.Type().Implements(textMarshaler) {
		if b, err := v.Interface().(encoding.TextMarshaler).MarshalText(); err == nil {
			return string(b)
		}
	}
	if v.Type().Implements(stringer) {
		return v.Interface().(fmt.Stringer).String()
	}

	switch v.Kind() {
	case reflect.String:
		if v.String() == "" {
			return "-"
		}
		return v.String()
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', 6, 64)
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "-"
		}
		if deref(v.Index(0)).Kind() == reflect.Struct {
			return fmt.Sprintf("[%d items]", v.Len())
		}
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = scalar(v.Index(i))
		}
		return strings.Join(parts, ", ")
	case reflect.Map:
		if v.Len() == 0 {
			return "-"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	default:
		return fmt.Sprint(v.Interface())
	}
}

// Table represents tabular data.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Render renders the table with headers.
func (t *Table) Render(w io.Writer) error {
	return t.RenderWithOptions(w, false)
}

// RenderWithOptions renders the table, optionally without headers.
func (t *Table) RenderWithOptions(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !noHeaders && len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

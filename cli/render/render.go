// Package render formats chartd CLI output.
//
// Format selection:
//   - If output is a TTY, default to table
//   - If output is not a TTY, default to json
//   - --format always overrides the default
//   - Invalid formats are errors
//
// Table output flattens nested structs into dotted keys
// (metrics.cache_hits) and prints map entries in key order.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/justapithecus/chartd/cli/tui"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string, returning an error for invalid formats.
// Empty input returns an empty Format so the caller can pick a default.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatTable, FormatYAML, "":
		return f, nil
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer creates a renderer from CLI flags writing to the app's
// writer (stdout unless overridden).
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stdout
	if c.App != nil && c.App.Writer != nil {
		out = c.App.Writer
	}
	if format == "" {
		if f, ok := out.(*os.File); ok && isTTY(f) {
			format = FormatTable
		} else {
			format = FormatJSON
		}
	}
	return &Renderer{format: format, noColor: c.Bool("no-color"), out: out}, nil
}

// NewRendererWithWriter creates a renderer with a custom writer (for testing).
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

// Format returns the selected output format.
func (r *Renderer) Format() Format {
	return r.format
}

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		return r.renderTable(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI shows data in an interactive view. Only stats views support it.
func (r *Renderer) RenderTUI(viewType string, data any, opts ...tui.Option) error {
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}
	return tui.Run(viewType, data, opts...)
}

func (r *Renderer) renderTable(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)

	v := indirect(reflect.ValueOf(data))
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		r.writeRows(w, v)
	case reflect.Struct, reflect.Map:
		for _, kv := range flatten("", v) {
			fmt.Fprintf(w, "%s:\t%s\n", kv[0], kv[1])
		}
	case reflect.Invalid:
		fmt.Fprintln(w, "(no results)")
	default:
		fmt.Fprintf(w, "%v\n", v.Interface())
	}

	return w.Flush()
}

// writeRows prints one line per element with the first element's
// flattened keys as the header.
func (r *Renderer) writeRows(w io.Writer, v reflect.Value) {
	if v.Len() == 0 {
		fmt.Fprintln(w, "(no results)")
		return
	}

	first := flatten("", indirect(v.Index(0)))
	headers := make([]string, len(first))
	for i, kv := range first {
		headers[i] = kv[0]
	}
	fmt.Fprintln(w, strings.Join(headers, "\t"))

	for i := range v.Len() {
		values := make(map[string]string)
		for _, kv := range flatten("", indirect(v.Index(i))) {
			values[kv[0]] = kv[1]
		}
		row := make([]string, len(headers))
		for j, h := range headers {
			row[j] = values[h]
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
}

// flatten turns a struct or map into ordered key/value pairs. Nested
// structs are expanded with dotted keys; maps of scalars are inlined.
func flatten(prefix string, v reflect.Value) [][2]string {
	join := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + "." + name
	}

	var out [][2]string
	switch v.Kind() {
	case reflect.Struct:
		if isLeafStruct(v) {
			return [][2]string{{prefix, formatValue(v)}}
		}
		t := v.Type()
		for i := range v.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name, skip := fieldName(f)
			if skip {
				continue
			}
			fv := indirect(v.Field(i))
			if fv.Kind() == reflect.Struct && !isLeafStruct(fv) {
				out = append(out, flatten(join(name), fv)...)
				continue
			}
			out = append(out, [2]string{join(name), formatValue(fv)})
		}
	case reflect.Map:
		for _, k := range sortedKeys(v) {
			out = append(out, [2]string{join(fmt.Sprint(k.Interface())), formatValue(indirect(v.MapIndex(k)))})
		}
	default:
		out = append(out, [2]string{prefix, formatValue(v)})
	}
	return out
}

func fieldName(f reflect.StructField) (string, bool) {
	if tag := f.Tag.Get("json"); tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return "", true
		}
		if name != "" {
			return name, false
		}
	}
	return strings.ToLower(f.Name), false
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
)

func isLeafStruct(v reflect.Value) bool {
	return v.Type() == timeType
}

func formatValue(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}

	switch {
	case v.Type() == timeType:
		t := v.Interface().(time.Time)
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	case v.Type() == durationType:
		return v.Interface().(time.Duration).String()
	}

	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%.2f", v.Float())
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		parts := make([]string, 0, v.Len())
		for _, k := range sortedKeys(v) {
			parts = append(parts, fmt.Sprintf("%v=%s", k.Interface(), formatValue(indirect(v.MapIndex(k)))))
		}
		return strings.Join(parts, ", ")
	case reflect.Struct:
		return "{...}"
	default:
		return fmt.Sprint(v.Interface())
	}
}

func sortedKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})
	return keys
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// isTTY returns true if the file is a terminal.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

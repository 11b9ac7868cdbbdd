// Package output renders command results as JSON, YAML or aligned tables.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Formatter writes data to w in a specific format.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// Tabular is implemented by values that choose their own table layout.
type Tabular interface {
	TableHeader() []string
	TableRow() []string
}

// NewFormatter returns a Formatter for the given format string.
// Supported formats: "json" (default), "yaml", "table".
func NewFormatter(format string) Formatter {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return &YAMLFormatter{}
	case "table":
		return &TableFormatter{}
	default:
		return &JSONFormatter{}
	}
}

// JSONFormatter formats data as indented JSON.
type JSONFormatter struct{}

// Format implements Formatter.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	return enc.Encode(data)
}

// YAMLFormatter formats data as YAML. Values are converted through their JSON
// encoding first, so custom MarshalJSON methods and key order carry over.
type YAMLFormatter struct{}

// Format implements Formatter.
func (f *YAMLFormatter) Format(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	blockStyle(&doc)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}

	return enc.Close()
}

// blockStyle drops the flow and quoting styles inherited from JSON.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// TableFormatter formats data as aligned text tables using tabwriter.
type TableFormatter struct{}

// Format implements Formatter.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice:
		if v.Len() == 0 {
			_, err := io.WriteString(w, "No results.\n")
			return err
		}
		writeRows(tw, v)
	case reflect.Struct:
		if t, ok := data.(Tabular); ok {
			writeLine(tw, t.TableHeader())
			writeLine(tw, t.TableRow())
			break
		}
		t := v.Type()
		for i := range t.NumField() {
			if !t.Field(i).IsExported() {
				continue
			}
			_, _ = fmt.Fprintf(tw, "%s:\t%v\n", t.Field(i).Name, v.Field(i).Interface())
		}
	default:
		_, _ = fmt.Fprintln(tw, data)
	}

	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())

	return err
}

func writeRows(tw io.Writer, v reflect.Value) {
	first := v.Index(0)
	if t, ok := first.Interface().(Tabular); ok {
		writeLine(tw, t.TableHeader())
		for i := range v.Len() {
			writeLine(tw, v.Index(i).Interface().(Tabular).TableRow())
		}
		return
	}

	elem := first
	if elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		// Slice of non-struct (e.g., []string)
		for i := range v.Len() {
			_, _ = fmt.Fprintln(tw, v.Index(i).Interface())
		}
		return
	}

	t := elem.Type()
	var headers []string
	for i := range t.NumField() {
		if t.Field(i).IsExported() {
			headers = append(headers, strings.ToUpper(t.Field(i).Name))
		}
	}
	writeLine(tw, headers)

	for i := range v.Len() {
		row := v.Index(i)
		if row.Kind() == reflect.Pointer {
			row = row.Elem()
		}
		vals := make([]string, 0, len(headers))
		for j := range row.NumField() {
			if t.Field(j).IsExported() {
				vals = append(vals, fmt.Sprintf("%v", row.Field(j).Interface()))
			}
		}
		writeLine(tw, vals)
	}
}

func writeLine(tw io.Writer, cells []string) {
	_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
}

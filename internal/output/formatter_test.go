package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type server struct {
	Name    string `json:"name"`
	Players int    `json:"players"`
	secret  string
}

type row struct{ host, state string }

func (r row) TableHeader() []string { return []string{"HOST", "STATE"} }
func (r row) TableRow() []string    { return []string{r.host, r.state} }

type ordered struct{}

func (ordered) MarshalJSON() ([]byte, error) {
	return []byte(`{"zulu":1,"alpha":"10","mid":{"x":true}}`), nil
}

func TestNewFormatter(t *testing.T) {
	tests := map[string]string{
		"json":  "json",
		"":      "json",
		"YAML":  "yaml",
		"yml":   "yaml",
		"table": "table",
	}
	for name, want := range tests {
		if got := formatName(NewFormatter(name)); got != want {
			t.Errorf("NewFormatter(%q) = %s, want %s", name, got, want)
		}
	}
}

func formatName(f Formatter) string {
	switch f.(type) {
	case *JSONFormatter:
		return "json"
	case *YAMLFormatter:
		return "yaml"
	case *TableFormatter:
		return "table"
	default:
		return "unknown"
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter("json").Format(&buf, server{Name: "<LS>", Players: 3}); err != nil {
		t.Fatalf("Format: %v", err)
	}

	if !strings.Contains(buf.String(), `"name": "<LS>"`) {
		t.Fatalf("output = %s", buf.String())
	}
	var back server
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil || back.Players != 3 {
		t.Fatalf("round trip = %+v, %v", back, err)
	}
}

func TestYAMLFormatterUsesJSONShape(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter("yaml").Format(&buf, ordered{}); err != nil {
		t.Fatalf("Format: %v", err)
	}

	want := "zulu: 1\nalpha: \"10\"\nmid:\n  x: true\n"
	if buf.String() != want {
		t.Fatalf("output =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestTableFormatterStructSlice(t *testing.T) {
	var buf bytes.Buffer
	data := []server{{Name: "Alpha", Players: 10, secret: "x"}, {Name: "Beta Server", Players: 2}}
	if err := NewFormatter("table").Format(&buf, data); err != nil {
		t.Fatalf("Format: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if strings.Fields(lines[0])[0] != "NAME" || strings.Contains(lines[0], "SECRET") {
		t.Errorf("header = %q", lines[0])
	}
	if strings.Index(lines[1], "10") != strings.Index(lines[0], "PLAYERS") {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}

func TestTableFormatterTabular(t *testing.T) {
	var buf bytes.Buffer
	data := []row{{"127.0.0.1:7777", "ok"}, {"10.0.0.1:7777", "timeout"}}
	if err := NewFormatter("table").Format(&buf, data); err != nil {
		t.Fatalf("Format: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "HOST") || !strings.Contains(out, "timeout") {
		t.Fatalf("output = %q", out)
	}
}

func TestTableFormatterEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter("table").Format(&buf, []row{}); err != nil {
		t.Fatalf("Format: %v", err)
	}
	if buf.String() != "No results.\n" {
		t.Fatalf("output = %q", buf.String())
	}
}

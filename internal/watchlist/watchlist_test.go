package watchlist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/woozymasta/sampquery/internal/models"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "watchlist.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write watchlist: %v", err)
	}

	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeFile(t, `
port = 7778

[[server]]
host = " samp.example.com "

[[server]]
host = "203.0.113.7"
port = 27015
type = "A2S"

[[server]]
host = "203.0.113.8"
port = 7777
`)

	servers, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []models.RegisterRequest{
		{Host: "samp.example.com", Port: 7778, Type: models.TypeSAMP},
		{Host: "203.0.113.7", Port: 27015, Type: models.TypeA2S},
		{Host: "203.0.113.8", Port: 7777, Type: models.TypeSAMP},
	}
	if len(servers) != len(want) {
		t.Fatalf("servers = %+v", servers)
	}
	for i := range want {
		if servers[i] != want[i] {
			t.Errorf("server[%d] = %+v, want %+v", i, servers[i], want[i])
		}
	}
}

func TestLoadDefaultType(t *testing.T) {
	servers, err := Load(writeFile(t, `
type = "a2s"
[[server]]
host = "10.0.0.1"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(servers) != 1 || servers[0].Type != models.TypeA2S || servers[0].Port != 0 {
		t.Fatalf("servers = %+v", servers)
	}
}

func TestLoadEmpty(t *testing.T) {
	servers, err := Load(writeFile(t, ``))
	if err != nil || len(servers) != 0 {
		t.Fatalf("Load = %+v, %v", servers, err)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]string{
		"missing host": "[[server]]\nport = 7777\n",
		"bad type":     "[[server]]\nhost = \"a\"\ntype = \"quake\"\n",
		"bad default":  "type = \"quake\"\n",
		"port range":   "[[server]]\nhost = \"a\"\nport = 70000\n",
		"unknown key":  "[[server]]\nhost = \"a\"\naddress = \"b\"\n",
		"syntax":       "[[server]\n",
	}

	for name, content := range tests {
		_, err := Load(writeFile(t, content))
		if err == nil {
			t.Errorf("%s: Load succeeded", name)
			continue
		}
		if !strings.HasPrefix(err.Error(), "load watchlist") {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("Load succeeded on missing file")
	}
}

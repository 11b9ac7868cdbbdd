package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/woozymasta/sampquery/internal/config"
	"github.com/woozymasta/sampquery/internal/fake"
	"github.com/woozymasta/sampquery/pkg/samp"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		arg     string
		want    samp.Request
		wantErr bool
	}{
		{"127.0.0.1", samp.Request{Host: "127.0.0.1"}, false},
		{"127.0.0.1:7778", samp.Request{Host: "127.0.0.1", Port: 7778}, false},
		{"samp.example.com:7777", samp.Request{Host: "samp.example.com", Port: 7777}, false},
		{"samp.example.com", samp.Request{Host: "samp.example.com"}, false},
		{"127.0.0.1:port", samp.Request{}, true},
	}

	for _, tt := range tests {
		got, err := parseTarget(tt.arg)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseTarget(%q) err = %v", tt.arg, err)
		}
		if got != tt.want {
			t.Errorf("parseTarget(%q) = %+v, want %+v", tt.arg, got, tt.want)
		}
	}
}

func TestTargetsAppendsWatchlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.toml")
	data := `
[[server]]
host = "203.0.113.7"
port = 7778

[[server]]
host = "203.0.113.8"

[[server]]
host = "203.0.113.9"
type = "a2s"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{Watchlist: path}
	cfg.Args.Hosts = []string{"127.0.0.1:7777"}

	reqs, labels, err := targets(cfg)
	if err != nil {
		t.Fatalf("targets: %v", err)
	}

	wantLabels := []string{"127.0.0.1:7777", "203.0.113.7:7778", "203.0.113.8"}
	if len(reqs) != len(wantLabels) {
		t.Fatalf("reqs = %+v", reqs)
	}
	for i, want := range wantLabels {
		if labels[i] != want {
			t.Errorf("labels[%d] = %q, want %q", i, labels[i], want)
		}
	}
}

type stubQueryer map[string]error

func (s stubQueryer) Query(_ context.Context, req samp.Request) (*samp.Response, error) {
	if err := s[req.Host]; err != nil {
		return nil, err
	}

	return &samp.Response{Address: req.Host, ServerInfo: samp.ServerInfo{Hostname: "Up " + req.Host}}, nil
}

func TestQueryAllKeepsOrder(t *testing.T) {
	q := stubQueryer{"b": &samp.QueryError{Kind: samp.ErrTimeout, Op: samp.OpInfo}}
	reqs := []samp.Request{{Host: "a"}, {Host: "b"}, {Host: "c"}}

	results := queryAll(context.Background(), q, reqs, []string{"a", "b", "c"})

	if len(results) != 3 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Response.Hostname != "Up a" || results[2].Response.Hostname != "Up c" {
		t.Errorf("results out of order: %+v", results)
	}
	if results[1].Response != nil || results[1].Kind != "timeout" || results[1].Error == "" {
		t.Errorf("failed result = %+v", results[1])
	}
	if results[0].Kind != "ok" {
		t.Errorf("kind = %q, want ok", results[0].Kind)
	}
}

func TestRunQuery(t *testing.T) {
	sc := fake.DefaultScenario()
	srv, err := fake.Listen("127.0.0.1:0", sc)
	if err != nil {
		t.Fatalf("fake.Listen: %v", err)
	}
	srv.Start()
	defer func() { _ = srv.Close() }()

	silent := fake.DefaultScenario()
	silent.Silent = map[samp.Opcode]bool{samp.OpInfo: true}
	dead, err := fake.Listen("127.0.0.1:0", silent)
	if err != nil {
		t.Fatalf("fake.Listen: %v", err)
	}
	dead.Start()
	defer func() { _ = dead.Close() }()

	cfg := &config.Config{
		Output: "table",
		Query:  config.Query{Timeout: 200 * time.Millisecond, Port: 7777, Charset: "windows-1251", PlayerLimit: 100},
	}

	cfg.Args.Hosts = []string{srv.Addr().String()}
	var out bytes.Buffer
	if code := runQuery(context.Background(), cfg, &out); code != 0 {
		t.Fatalf("exit code = %d, output %q", code, out.String())
	}
	if !strings.Contains(out.String(), sc.Info.Hostname) || !strings.Contains(out.String(), "3/50") {
		t.Errorf("output = %q", out.String())
	}

	cfg.Args.Hosts = []string{srv.Addr().String(), dead.Addr().String()}
	out.Reset()
	if code := runQuery(context.Background(), cfg, &out); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(out.String(), "timeout") {
		t.Errorf("output = %q", out.String())
	}
}

package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/persist/pkg/errors"
)

const levelXML = `<Level Name="meadow"><Points><Item X="1"/><Item X="2"/></Points></Level>`

const levelYAML = `Level:
  Name: meadow
  Points:
    - X: 1
    - X: 2
`

// isolate points every XDG directory at a fresh temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	return dir
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	var stdout, stderr bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, path, data string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersion(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, "", "--version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "persist version ") {
		t.Errorf("--version = %q", out)
	}
}

func TestConvertStdin(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, levelXML, "convert", "--to", "yaml")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if out != levelYAML {
		t.Errorf("got\n%s\nwant\n%s", out, levelYAML)
	}
}

func TestConvertUsesConfigDefault(t *testing.T) {
	dir := isolate(t)
	cfgDir := filepath.Join(dir, "config", appName)
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(cfgDir, "config.toml"), "format = \"xml\"\n")

	out, _, err := execute(t, levelYAML, "convert", "--no-cache")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if out != levelXML {
		t.Errorf("got %s, want %s", out, levelXML)
	}
}

func TestConvertToFile(t *testing.T) {
	dir := isolate(t)
	in := writeFile(t, filepath.Join(dir, "level.xml"), levelXML)
	outPath := filepath.Join(dir, "out", "level.json")

	_, stderr, err := execute(t, "", "convert", in, "-o", outPath)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "{\n  \"Level\": {") {
		t.Errorf("output:\n%s", data)
	}
	if !strings.Contains(stderr, "Converted xml to json") || !strings.Contains(stderr, "4 elements") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestConvertMany(t *testing.T) {
	dir := isolate(t)
	a := writeFile(t, filepath.Join(dir, "a.xml"), levelXML)
	b := writeFile(t, filepath.Join(dir, "b.yaml"), levelYAML)
	outDir := filepath.Join(dir, "build")

	if _, _, err := execute(t, "", "convert", a, b, "--to", "json", "--out-dir", outDir); err != nil {
		t.Fatalf("convert: %v", err)
	}
	for _, name := range []string{"a.json", "b.json"} {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !strings.Contains(string(data), `"Name": "meadow"`) {
			t.Errorf("%s:\n%s", name, data)
		}
	}

	if _, _, err := execute(t, "", "convert", a, b, "--to", "json", "-o", "x.json"); err == nil {
		t.Error("--output with several inputs should fail")
	}
}

func TestConvertErrors(t *testing.T) {
	isolate(t)
	if _, _, err := execute(t, levelXML, "convert", "--to", "toml"); !errors.Is(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("toml err = %v", err)
	}
	if _, _, err := execute(t, `<Node Name="r"><Item/><Item/></Node>`, "convert", "--to", "yaml"); !errors.Is(err, errors.ErrCodeSerialization) {
		t.Errorf("anonymous container err = %v", err)
	}
}

func TestInspect(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, filepath.Join(dir, "level.xml"),
		`<Level Name="meadow"><Points><Item id="1" X="3"/><Item X="5"/></Points><Target ref="1"/><Lost ref="9"/></Level>`)

	out, stderr, err := execute(t, "", "inspect", path)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"Level", `Name="meadow"`, "#1", "→ #1", "references", "elements"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(stderr, "Dangling references: #9") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestInspectSummary(t *testing.T) {
	isolate(t)
	doc := `<Level><Points><Item id="1"/><Item id="2"/></Points><A ref="1"/><B ref="2"/><C ref="3"/></Level>`
	out, _, err := execute(t, doc, "inspect", "--depth", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "… 2 more") {
		t.Errorf("depth limit not applied:\n%s", out)
	}
}

func TestGraphDOT(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, `<Box W="2"/>`, "graph", "--format", "dot")
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if !strings.HasPrefix(out, "digraph G {") {
		t.Errorf("output:\n%s", out)
	}
}

func TestStoreCommands(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			dir := isolate(t)
			dsn := filepath.Join(dir, "assets")
			if backend == "sqlite" {
				dsn += ".db"
			}
			flags := []string{"--backend", backend, "--dsn", dsn}
			level := writeFile(t, filepath.Join(dir, "level.xml"), levelXML)

			run := func(stdin string, args ...string) (string, string, error) {
				return execute(t, stdin, append(args, flags...)...)
			}

			_, stderr, err := run("", "store", "put", "levels/meadow", level)
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if !strings.Contains(stderr, "Stored levels/meadow") {
				t.Errorf("put stderr = %q", stderr)
			}
			if _, _, err := run(levelYAML, "store", "put", "levels/hill"); err != nil {
				t.Fatalf("put from stdin: %v", err)
			}

			out, _, err := run("", "store", "get", "levels/meadow")
			if err != nil || out != levelXML {
				t.Fatalf("get = %q, %v", out, err)
			}
			out, _, err = run("", "store", "get", "levels/meadow", "--to", "yaml")
			if err != nil || out != levelYAML {
				t.Fatalf("get --to yaml = %q, %v", out, err)
			}

			out, _, err = run("", "store", "ls", "levels/")
			if err != nil {
				t.Fatalf("ls: %v", err)
			}
			if !strings.Contains(out, "levels/hill") || !strings.Contains(out, "levels/meadow") || strings.Index(out, "levels/hill") > strings.Index(out, "levels/meadow") {
				t.Errorf("ls output:\n%s", out)
			}

			if _, _, err := run("", "store", "put", "levels/meadow", level, "--rev", "stale"); !errors.Is(err, errors.ErrCodeConflict) {
				t.Errorf("stale put err = %v", err)
			}
			if _, _, err := run("<Level", "store", "put", "levels/broken", "--from", "xml"); !errors.Is(err, errors.ErrCodeSerialization) {
				t.Errorf("malformed put err = %v", err)
			}

			if _, _, err := run("", "store", "rm", "levels/meadow", "levels/hill"); err != nil {
				t.Fatalf("rm: %v", err)
			}
			if _, _, err := run("", "store", "get", "levels/meadow"); !errors.Is(err, errors.ErrCodeNotFound) {
				t.Errorf("get after rm err = %v", err)
			}
			_, stderr, err = run("", "store", "ls")
			if err != nil || !strings.Contains(stderr, "No assets") {
				t.Errorf("empty ls = %q, %v", stderr, err)
			}
		})
	}
}

func TestCacheCommands(t *testing.T) {
	dir := isolate(t)

	out, _, err := execute(t, "", "cache", "path")
	if err != nil {
		t.Fatal(err)
	}
	cache := filepath.Join(dir, "cache", appName)
	if strings.TrimSpace(out) != cache {
		t.Errorf("cache path = %q, want %q", out, cache)
	}

	if _, _, err := execute(t, levelXML, "convert", "--to", "json"); err != nil {
		t.Fatal(err)
	}
	_, stderr, err := execute(t, "", "cache", "clear")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr, "Cleared 1 cached entries") {
		t.Errorf("clear stderr = %q", stderr)
	}
	_, stderr, err = execute(t, "", "cache", "clear")
	if err != nil || !strings.Contains(stderr, "Cache is empty") {
		t.Errorf("second clear = %q, %v", stderr, err)
	}
}

func TestCompletion(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, "", "completion", "bash")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "persist") {
		t.Errorf("completion output does not mention persist")
	}
	if _, _, err := execute(t, "", "completion", "tcsh"); err == nil {
		t.Error("unknown shell should fail")
	}
}

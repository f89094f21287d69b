package convert

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/matzehuels/persist/pkg/cache"
	"github.com/matzehuels/persist/pkg/codec"
	"github.com/matzehuels/persist/pkg/errors"
	"github.com/matzehuels/persist/pkg/observability"
	"github.com/matzehuels/persist/pkg/render/nodelink"
)

const levelXML = `<Level Name="meadow"><Points><Item X="1"/><Item X="2"/></Points></Level>`

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	return NewRunner(c, nil, nil)
}

func TestNewRunnerDefaults(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	if r.Cache == nil || r.Keyer == nil || r.Logger == nil {
		t.Errorf("NewRunner left nil fields: %+v", r)
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		in   string
		want codec.Format
	}{
		{"<Level/>", codec.XML},
		{"  \n<?xml version=\"1.0\"?><a/>", codec.XML},
		{`{"Level": {}}`, codec.JSON},
		{"\t{ }", codec.JSON},
		{"Level:\n  Name: x\n", codec.YAML},
		{"", codec.YAML},
	}
	for _, tt := range tests {
		if got := Detect([]byte(tt.in)); got != tt.want {
			t.Errorf("Detect(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestConvertXMLToYAML(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Convert(context.Background(), []byte(levelXML), Options{To: "yaml"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := `Level:
  Name: meadow
  Points:
    - X: 1
    - X: 2
`
	if string(res.Data) != want {
		t.Errorf("got\n%s\nwant\n%s", res.Data, want)
	}
	if res.From != codec.XML || res.To != codec.YAML {
		t.Errorf("formats = %s -> %s", res.From, res.To)
	}
	if res.Elements != 4 {
		t.Errorf("Elements = %d, want 4", res.Elements)
	}
	if res.CacheHit {
		t.Error("first conversion should not hit the cache")
	}
}

func TestConvertRoundTrip(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	ctx := context.Background()
	data := []byte(levelXML)
	for _, to := range []string{"json", "yaml", "xml"} {
		res, err := r.Convert(ctx, data, Options{To: to})
		if err != nil {
			t.Fatalf("Convert to %s: %v", to, err)
		}
		data = res.Data
	}
	if string(data) != levelXML {
		t.Errorf("round trip changed document:\ngot  %s\nwant %s", data, levelXML)
	}
}

func TestConvertCache(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()
	opts := Options{From: "xml", To: "json"}

	first, err := r.Convert(ctx, []byte(levelXML), opts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Convert(ctx, []byte(levelXML), opts)
	if err != nil {
		t.Fatal(err)
	}
	if !second.CacheHit {
		t.Error("second conversion should hit the cache")
	}
	if string(second.Data) != string(first.Data) {
		t.Errorf("cached data differs:\n%s\n%s", first.Data, second.Data)
	}

	opts.Refresh = true
	third, err := r.Convert(ctx, []byte(levelXML), opts)
	if err != nil {
		t.Fatal(err)
	}
	if third.CacheHit {
		t.Error("refresh should bypass the cache")
	}

	indented, err := r.Convert(ctx, []byte(levelXML), Options{From: "xml", To: "json", Indent: "    "})
	if err != nil {
		t.Fatal(err)
	}
	if indented.CacheHit {
		t.Error("a different indent should not share a cache entry")
	}
	if !strings.Contains(string(indented.Data), "\n    \"Level\"") {
		t.Errorf("indent not applied:\n%s", indented.Data)
	}
}

func TestConvertErrors(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		input string
		opts  Options
		code  errors.Code
	}{
		{"unknown target", levelXML, Options{To: "toml"}, errors.ErrCodeInvalidFormat},
		{"unknown source", levelXML, Options{From: "csv", To: "yaml"}, errors.ErrCodeInvalidFormat},
		{"no target", levelXML, Options{}, errors.ErrCodeInvalidFormat},
		{"malformed", "<Level", Options{To: "yaml"}, errors.ErrCodeSerialization},
		{"anonymous container", `<Node Name="r"><Item/><Item/></Node>`, Options{To: "yaml"}, errors.ErrCodeSerialization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Convert(ctx, []byte(tt.input), tt.opts)
			if !errors.Is(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestConvertAll(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	ctx := context.Background()
	jobs := []Job{
		{Name: "a.xml", Input: []byte(levelXML), Options: Options{To: "json"}},
		{Name: "b.json", Input: []byte(`{"Box": {"W": "2"}}`), Options: Options{To: "xml"}},
		{Name: "c.yaml", Input: []byte("Box:\n  W: 3\n"), Options: Options{To: "xml"}},
	}

	results, err := r.ConvertAll(ctx, jobs, 2)
	if err != nil {
		t.Fatalf("ConvertAll: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if string(results[1].Data) != `<Box W="2"/>` || string(results[2].Data) != `<Box W="3"/>` {
		t.Errorf("results out of order: %s, %s", results[1].Data, results[2].Data)
	}

	jobs = append(jobs, Job{Name: "broken.xml", Input: []byte("<"), Options: Options{To: "yaml"}})
	_, err = r.ConvertAll(ctx, jobs, 0)
	if err == nil || !strings.Contains(err.Error(), "broken.xml") {
		t.Errorf("err = %v, want failure naming broken.xml", err)
	}
}

func TestGraph(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()
	input := []byte(`<Scene Default="2"><Materials><Item id="2" Name="stone"/></Materials></Scene>`)

	dot, err := r.Graph(ctx, input, GraphOptions{Format: "dot"})
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if !strings.HasPrefix(string(dot), "digraph G {") || strings.Contains(string(dot), "style=dashed") {
		t.Errorf("unexpected DOT:\n%s", dot)
	}

	guessed, err := r.Graph(ctx, input, GraphOptions{Format: "dot", Options: nodelink.Options{GuessReferences: true}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(guessed), `label="Default"`) {
		t.Errorf("guessing should not reuse the plain cached graph:\n%s", guessed)
	}

	if _, err := r.Graph(ctx, input, GraphOptions{Format: "png"}); !errors.Is(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("png err = %v, want INVALID_FORMAT", err)
	}
}

type countingCacheHooks struct {
	mu                sync.Mutex
	hits, misses, set int
}

func (h *countingCacheHooks) OnCacheHit(context.Context, string) {
	h.mu.Lock()
	h.hits++
	h.mu.Unlock()
}

func (h *countingCacheHooks) OnCacheMiss(context.Context, string) {
	h.mu.Lock()
	h.misses++
	h.mu.Unlock()
}

func (h *countingCacheHooks) OnCacheSet(context.Context, string, int) {
	h.mu.Lock()
	h.set++
	h.mu.Unlock()
}

func TestConvertCacheHooks(t *testing.T) {
	hooks := &countingCacheHooks{}
	observability.SetCacheHooks(hooks)
	defer observability.Reset()

	r := newTestRunner(t)
	ctx := context.Background()
	for range 3 {
		if _, err := r.Convert(ctx, []byte(levelXML), Options{To: "yaml"}); err != nil {
			t.Fatal(err)
		}
	}
	if hooks.misses != 1 || hooks.set != 1 || hooks.hits != 2 {
		t.Errorf("hits=%d misses=%d sets=%d, want 2/1/1", hooks.hits, hooks.misses, hooks.set)
	}
}

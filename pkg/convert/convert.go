// Package convert translates documents between text formats and renders
// them as graphs, with caching.
//
// Conversion is schema-free: the input is decoded into an element tree by
// the source codec and encoded by the target codec, so any document written
// by an archive can be moved between XML, YAML and JSON without its Go types.
// A conversion fails when the target format cannot represent the tree, such
// as an inline container in YAML.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/persist/pkg/cache"
	"github.com/matzehuels/persist/pkg/codec"
	"github.com/matzehuels/persist/pkg/errors"
	"github.com/matzehuels/persist/pkg/observability"
	"github.com/matzehuels/persist/pkg/render/nodelink"
	"github.com/matzehuels/persist/pkg/tree"
)

// Cache lifetimes.
const (
	TTLConvert = 7 * 24 * time.Hour
	TTLRender  = 7 * 24 * time.Hour
)

// Options configures one conversion.
type Options struct {
	// From is the source format. Empty detects it from the input.
	From string
	// To is the target format.
	To string
	// Indent overrides the target codec's indentation when set.
	Indent string
	// Refresh bypasses cached results.
	Refresh bool
}

// Result is the outcome of a conversion.
type Result struct {
	Data     []byte
	From     codec.Format
	To       codec.Format
	Elements int
	CacheHit bool
}

// Runner encapsulates conversion with caching.
// The CLI and the HTTP server share it to avoid duplicating caching logic.
//
// The Runner is stateless except for the cache and logger, so multiple
// goroutines can safely use the same Runner.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Cache: c, Keyer: keyer, Logger: logger}
}

// Detect guesses the format of data from its first significant byte.
func Detect(data []byte) codec.Format {
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	switch {
	case len(trimmed) == 0:
		return codec.YAML
	case trimmed[0] == '<':
		return codec.XML
	case trimmed[0] == '{' || trimmed[0] == '[':
		return codec.JSON
	}
	return codec.YAML
}

func (r *Runner) codecs(input []byte, opts Options) (from, to codec.Codec, err error) {
	if opts.From == "" {
		from, err = codec.Lookup(string(Detect(input)))
	} else {
		from, err = codec.Lookup(opts.From)
	}
	if err != nil {
		return nil, nil, err
	}
	if opts.To == "" {
		return nil, nil, errors.New(errors.ErrCodeInvalidFormat, "no target format")
	}
	if to, err = codec.Lookup(opts.To); err != nil {
		return nil, nil, err
	}
	if opts.Indent != "" {
		to = codec.WithIndent(to, opts.Indent)
	}
	return from, to, nil
}

// Convert decodes input and re-encodes it in the target format.
func (r *Runner) Convert(ctx context.Context, input []byte, opts Options) (*Result, error) {
	from, to, err := r.codecs(input, opts)
	if err != nil {
		return nil, err
	}

	key := r.Keyer.ConvertKey(cache.Hash(input), cache.ConvertKeyOpts{
		From:   string(from.Format()),
		To:     string(to.Format()),
		Indent: opts.Indent,
	})
	if !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			observability.Cache().OnCacheHit(ctx, "convert")
			r.Logger.Debug("conversion cache hit", "from", from.Format(), "to", to.Format())
			return &Result{Data: data, From: from.Format(), To: to.Format(), CacheHit: true}, nil
		}
		observability.Cache().OnCacheMiss(ctx, "convert")
	}

	start := time.Now()
	doc, err := codec.Unmarshal(from, input)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", from.Format(), err)
	}
	data, err := codec.Marshal(to, doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", to.Format(), err)
	}

	if err := r.Cache.Set(ctx, key, data, TTLConvert); err == nil {
		observability.Cache().OnCacheSet(ctx, "convert", len(data))
	} else {
		r.Logger.Warn("cache write failed", "error", err)
	}

	res := &Result{Data: data, From: from.Format(), To: to.Format(), Elements: doc.Count()}
	r.Logger.Debug("converted document",
		"from", res.From,
		"to", res.To,
		"elements", res.Elements,
		"duration", time.Since(start))
	return res, nil
}

// Job is one input of a batch conversion.
type Job struct {
	Name  string
	Input []byte
	Options
}

// ConvertAll runs jobs concurrently, at most parallel at a time (unlimited
// when parallel <= 0). Results are in job order. The first failure cancels
// the remaining jobs and is returned with the job's name.
func (r *Runner) ConvertAll(ctx context.Context, jobs []Job, parallel int) ([]*Result, error) {
	results := make([]*Result, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := r.Convert(ctx, job.Input, job.Options)
			if err != nil {
				return fmt.Errorf("%s: %w", job.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// GraphOptions configures a rendered graph.
type GraphOptions struct {
	// From is the source format. Empty detects it from the input.
	From string
	// Format is "dot" or "svg".
	Format string
	nodelink.Options
	Refresh bool
}

// Graph renders the document in input as a node-link diagram.
func (r *Runner) Graph(ctx context.Context, input []byte, opts GraphOptions) ([]byte, error) {
	if opts.Format == "" {
		opts.Format = "svg"
	}
	if opts.Format != "dot" && opts.Format != "svg" {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "unknown graph format %q (supported: dot, svg)", opts.Format)
	}
	from, err := r.source(input, opts.From)
	if err != nil {
		return nil, err
	}

	key := r.Keyer.RenderKey(cache.Hash(input), cache.RenderKeyOpts{
		Format:   opts.Format,
		Detailed: opts.Detailed,
		Guess:    opts.GuessReferences,
	})
	if !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			observability.Cache().OnCacheHit(ctx, "render")
			return data, nil
		}
		observability.Cache().OnCacheMiss(ctx, "render")
	}

	doc, err := codec.Unmarshal(from, input)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", from.Format(), err)
	}
	data, err := r.render(ctx, doc, opts)
	if err != nil {
		return nil, err
	}
	if err := r.Cache.Set(ctx, key, data, TTLRender); err == nil {
		observability.Cache().OnCacheSet(ctx, "render", len(data))
	}
	return data, nil
}

func (r *Runner) source(input []byte, name string) (codec.Codec, error) {
	if name == "" {
		name = string(Detect(input))
	}
	return codec.Lookup(name)
}

func (r *Runner) render(ctx context.Context, doc *tree.Element, opts GraphOptions) ([]byte, error) {
	dot := nodelink.ToDOT(doc, opts.Options)
	if opts.Format == "dot" {
		return []byte(dot), nil
	}
	start := time.Now()
	svg, err := nodelink.RenderSVG(ctx, dot)
	if err != nil {
		return nil, err
	}
	r.Logger.Debug("rendered graph", "elements", doc.Count(), "duration", time.Since(start))
	return svg, nil
}

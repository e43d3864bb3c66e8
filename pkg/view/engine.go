// Package view loads, compiles, and caches templates from a directory
// and renders them on demand. Compiled programs are cached per file and
// revalidated against the file's mod time, so edits show up on the next
// render without a restart.
package view

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vellum/pkg/compiler"
	"vellum/pkg/program"
	"vellum/pkg/transforms"
)

// DefaultExt is appended to template names when resolving files.
const DefaultExt = ".vel"

// Engine resolves template names to files under a root directory. It
// implements program.Loader, so templates can include one another by
// name. Safe for concurrent use.
type Engine struct {
	root       string
	ext        string
	debug      bool
	production bool
	transforms *transforms.Table
	fragments  *program.FragmentCache

	cache sync.Map // map[string]*cachedProgram

	mu         sync.Mutex
	dependents map[string]map[string]struct{} // template -> templates that include it
}

type cachedProgram struct {
	prog    *program.Program
	modTime time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithExt sets the file extension appended to template names.
func WithExt(ext string) Option {
	return func(e *Engine) { e.ext = ext }
}

// WithDebug embeds source position markers in rendered output.
func WithDebug(debug bool) Option {
	return func(e *Engine) { e.debug = debug }
}

// WithProduction skips mod-time revalidation: once compiled, a template
// stays cached until the process exits or ClearCache runs.
func WithProduction(production bool) Option {
	return func(e *Engine) { e.production = production }
}

// WithTransforms replaces the pipe-transform table.
func WithTransforms(table *transforms.Table) Option {
	return func(e *Engine) { e.transforms = table }
}

// New returns an Engine serving templates from root.
func New(root string, opts ...Option) *Engine {
	e := &Engine{
		root:       root,
		ext:        DefaultExt,
		transforms: transforms.Default(),
		fragments:  program.NewFragmentCache(),
		dependents: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fragments exposes the shared fragment cache for x:cache regions.
func (e *Engine) Fragments() *program.FragmentCache {
	return e.fragments
}

// Render loads the named template and renders it with data.
func (e *Engine) Render(name string, data map[string]any) (string, error) {
	p, err := e.Load(name)
	if err != nil {
		return "", err
	}
	start := time.Now()
	out, err := p.Render(data)
	renderDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return out, err
}

// Load returns the compiled program for a template name, compiling it on
// first use or after the underlying file changed. Load satisfies
// program.Loader.
func (e *Engine) Load(name string) (*program.Program, error) {
	path, err := e.resolve(name)
	if err != nil {
		return nil, err
	}

	if cached, ok := e.cache.Load(name); ok {
		cp := cached.(*cachedProgram)
		if e.production {
			cacheHits.Inc()
			return cp.prog, nil
		}
		if info, err := os.Stat(path); err == nil && info.ModTime().Equal(cp.modTime) {
			cacheHits.Inc()
			return cp.prog, nil
		}
		// The file changed on disk, so anything that includes it is stale too.
		e.invalidateDependents(name)
	}
	cacheMisses.Inc()
	return e.compile(name, path)
}

func (e *Engine) compile(name, path string) (*program.Program, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("view not found: %s", name)
	}

	var deps []string
	p, err := compiler.Compile(string(source), compiler.Options{
		Name:       name + e.ext,
		Debug:      e.debug,
		Transforms: e.transforms,
		TrackDependency: func(dep string) {
			deps = append(deps, dep)
		},
	})
	if err != nil {
		return nil, err
	}
	compilesTotal.Inc()
	p.Loader = e
	p.Fragments = e.fragments

	info, statErr := os.Stat(path)
	cp := &cachedProgram{prog: p}
	if statErr == nil {
		cp.modTime = info.ModTime()
	}
	e.cache.Store(name, cp)
	e.recordDeps(name, deps)
	return p, nil
}

// resolve maps a template name to a file path under root and rejects
// names that would escape it.
func (e *Engine) resolve(name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid template name %q", name)
	}
	return filepath.Join(e.root, cleaned+e.ext), nil
}

func (e *Engine) recordDeps(name string, deps []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, dep := range deps {
		set := e.dependents[dep]
		if set == nil {
			set = make(map[string]struct{})
			e.dependents[dep] = set
		}
		set[name] = struct{}{}
	}
}

// invalidateDependents drops cached programs that include the named
// template, transitively, so a fresh partial is never rendered inside a
// stale page.
func (e *Engine) invalidateDependents(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := map[string]struct{}{name: {}}
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for dep := range e.dependents[cur] {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			e.cache.Delete(dep)
			queue = append(queue, dep)
		}
	}
}

// ClearCache drops every cached program and fragment.
func (e *Engine) ClearCache() {
	e.cache.Range(func(key, _ any) bool {
		e.cache.Delete(key)
		return true
	})
	e.fragments.Clear()
}

package program_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vellum/pkg/compiler"
	"vellum/pkg/program"
)

func TestRenderDoesNotMutateData(t *testing.T) {
	p, err := compiler.Compile(`<li x:loop="$items as $item"><?= $item ?></li>`, compiler.Options{Name: "t"})
	require.NoError(t, err)
	data := map[string]any{"items": []any{"a"}}
	_, err = p.Render(data)
	require.NoError(t, err)
	_, leaked := data["item"]
	assert.False(t, leaked, "loop variables must not leak into caller data")
	_, leaked = data["loop"]
	assert.False(t, leaked)
}

func TestLoopVariableShadowing(t *testing.T) {
	p, err := compiler.Compile(`<i x:loop="$items as $x"><?= $x ?></i>|<?= $x ?>`, compiler.Options{Name: "t"})
	require.NoError(t, err)
	out, err := p.Render(map[string]any{"items": []any{"a"}, "x": "outer"})
	require.NoError(t, err)
	assert.Equal(t, `<i>a</i>|outer`, out, "shadowed variable restores after the loop")
}

func TestRenderErrorLocation(t *testing.T) {
	p, err := compiler.Compile("line one\n<p><?= $v ?></p>", compiler.Options{Name: "views/x.vel"})
	require.NoError(t, err)
	_, err = p.Render(map[string]any{"v": []int{1}})
	require.Error(t, err)
	var rerr *program.RenderError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "views/x.vel", rerr.Template)
	assert.Equal(t, 2, rerr.Line)
}

func TestConcurrentRender(t *testing.T) {
	p, err := compiler.Compile(`<li x:loop="$items as $i"><?= $i ?></li>`, compiler.Options{Name: "t"})
	require.NoError(t, err)
	done := make(chan error, 8)
	for g := 0; g < 8; g++ {
		go func(g int) {
			for j := 0; j < 50; j++ {
				out, err := p.Render(map[string]any{"items": []any{g}})
				if err == nil && out != fmt.Sprintf("<li>%d</li>", g) {
					err = fmt.Errorf("bad output %q", out)
				}
				if err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}(g)
	}
	for g := 0; g < 8; g++ {
		assert.NoError(t, <-done)
	}
}

type mapLoader map[string]*program.Program

func (m mapLoader) Load(name string) (*program.Program, error) {
	p, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("template %q not found", name)
	}
	return p, nil
}

func TestInclude(t *testing.T) {
	partial, err := compiler.Compile(`<span><?= $name ?></span>`, compiler.Options{Name: "partial"})
	require.NoError(t, err)
	page, err := compiler.Compile(`<div x:include="'partial'"></div>`, compiler.Options{Name: "page"})
	require.NoError(t, err)
	page.Loader = mapLoader{"partial": partial}

	out, err := page.Render(map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, `<div><span>Ada</span></div>`, out)
}

func TestIncludeWithExtraData(t *testing.T) {
	partial, err := compiler.Compile(`<b><?= $label ?></b>`, compiler.Options{Name: "partial"})
	require.NoError(t, err)
	page, err := compiler.Compile(`<x:fragment x:include="'partial', {label: $title}"></x:fragment>`, compiler.Options{Name: "page"})
	require.NoError(t, err)
	page.Loader = mapLoader{"partial": partial}

	out, err := page.Render(map[string]any{"title": "Hi"})
	require.NoError(t, err)
	assert.Equal(t, `<b>Hi</b>`, out)
}

func TestIncludeWithoutLoader(t *testing.T) {
	page, err := compiler.Compile(`<div x:include="$tpl"></div>`, compiler.Options{Name: "page"})
	require.NoError(t, err)
	_, err = page.Render(map[string]any{"tpl": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no template loader")
}

func TestFragmentCacheRegion(t *testing.T) {
	p, err := compiler.Compile(`<div x:cache="'sidebar', 60"><?= $n ?></div>`, compiler.Options{Name: "t"})
	require.NoError(t, err)
	p.Fragments = program.NewFragmentCache()

	out, err := p.Render(map[string]any{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, `<div>1</div>`, out)

	// Second render hits the cached fragment, the new value is invisible.
	out, err = p.Render(map[string]any{"n": 2})
	require.NoError(t, err)
	assert.Equal(t, `<div>1</div>`, out)

	p.Fragments.Clear()
	out, err = p.Render(map[string]any{"n": 3})
	require.NoError(t, err)
	assert.Equal(t, `<div>3</div>`, out)
}

func TestFragmentCacheTTL(t *testing.T) {
	c := program.NewFragmentCache()
	c.Set("k", "v", 10*time.Millisecond)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "expired entries do not serve")
}

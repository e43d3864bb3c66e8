package view

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, root, name, source string) string {
	t.Helper()
	path := filepath.Join(root, name+DefaultExt)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

// touch bumps a file's mod time so a rewrite registers even when the
// filesystem's timestamp granularity is coarse.
func touch(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
}

func TestRender(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "hello", `<p><?= $name ?></p>`)

	e := New(root)
	out, err := e.Render("hello", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, `<p>Ada</p>`, out)
}

func TestRenderMissing(t *testing.T) {
	e := New(t.TempDir())
	_, err := e.Render("nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "view not found")
}

func TestRenderRejectsTraversal(t *testing.T) {
	e := New(t.TempDir())
	_, err := e.Render("../secrets", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid template name")
}

func TestLoadCachesPrograms(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "page", `<p>hi</p>`)

	e := New(root)
	first, err := e.Load("page")
	require.NoError(t, err)
	second, err := e.Load("page")
	require.NoError(t, err)
	assert.Same(t, first, second, "unchanged files serve the cached program")
}

func TestLoadRecompilesOnChange(t *testing.T) {
	root := t.TempDir()
	path := writeTemplate(t, root, "page", `<p>old</p>`)

	e := New(root)
	out, err := e.Render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, `<p>old</p>`, out)

	require.NoError(t, os.WriteFile(path, []byte(`<p>new</p>`), 0o644))
	touch(t, path)

	out, err = e.Render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, `<p>new</p>`, out)
}

func TestProductionModeSkipsRevalidation(t *testing.T) {
	root := t.TempDir()
	path := writeTemplate(t, root, "page", `<p>old</p>`)

	e := New(root, WithProduction(true))
	_, err := e.Render("page", nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`<p>new</p>`), 0o644))
	touch(t, path)

	out, err := e.Render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, `<p>old</p>`, out, "production keeps serving the cached program")

	e.ClearCache()
	out, err = e.Render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, `<p>new</p>`, out)
}

func TestIncludeAcrossFiles(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "partials/nav", `<nav><?= $title ?></nav>`)
	writeTemplate(t, root, "page", `<div x:include="'partials/nav'"></div>`)

	e := New(root)
	out, err := e.Render("page", map[string]any{"title": "Home"})
	require.NoError(t, err)
	assert.Equal(t, `<div><nav>Home</nav></div>`, out)
}

func TestChangedPartialReachesPage(t *testing.T) {
	root := t.TempDir()
	partial := writeTemplate(t, root, "partial", `<b>one</b>`)
	writeTemplate(t, root, "page", `<div x:include="'partial'"></div>`)

	e := New(root)
	out, err := e.Render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, `<div><b>one</b></div>`, out)

	require.NoError(t, os.WriteFile(partial, []byte(`<b>two</b>`), 0o644))
	touch(t, partial)

	out, err = e.Render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, `<div><b>two</b></div>`, out)
}

func TestSubdirectoryNames(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "admin/users/list", `<ul></ul>`)

	e := New(root)
	out, err := e.Render("admin/users/list", nil)
	require.NoError(t, err)
	assert.Equal(t, `<ul></ul>`, out)
}

func TestCustomExtension(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "page.html"), []byte(`<p>x</p>`), 0o644))

	e := New(root, WithExt(".html"))
	out, err := e.Render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, `<p>x</p>`, out)
}

func TestFragmentCacheShared(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "page", `<div x:cache="'side', 60"><?= $n ?></div>`)

	e := New(root)
	out, err := e.Render("page", map[string]any{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, `<div>1</div>`, out)

	out, err = e.Render("page", map[string]any{"n": 2})
	require.NoError(t, err)
	assert.Equal(t, `<div>1</div>`, out, "fragment survives across renders")

	e.Fragments().Clear()
	out, err = e.Render("page", map[string]any{"n": 3})
	require.NoError(t, err)
	assert.Equal(t, `<div>3</div>`, out)
}

func TestDebugMarkers(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "page", `<p><?= $v ?></p>`)

	e := New(root, WithDebug(true))
	out, err := e.Render("page", map[string]any{"v": "x"})
	require.NoError(t, err)
	assert.Contains(t, out, "page.vel:1:")
}

package buildenv

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewParsesEntries(t *testing.T) {
	t.Parallel()

	env := New([]string{"A=1", "B=x=y", "broken", "=skip"})

	assert.Equal(t, "1", env.Lookup("A"))
	assert.Equal(t, "x=y", env.Lookup("B"))
	assert.Equal(t, []string{"A", "B"}, env.Keys())
}

func TestSetIfUndefined(t *testing.T) {
	t.Parallel()

	env := New([]string{"PKG_CONFIG_FOO_PREFIX=/user"})

	assert.False(t, env.SetIfUndefined("PKG_CONFIG_FOO_PREFIX", "/computed"))
	assert.True(t, env.SetIfUndefined("PKG_CONFIG_BAR_PREFIX", "/computed"))
	assert.Equal(t, "/user", env.Lookup("PKG_CONFIG_FOO_PREFIX"))
	assert.Equal(t, "/computed", env.Lookup("PKG_CONFIG_BAR_PREFIX"))
}

func TestPathLists(t *testing.T) {
	t.Parallel()

	sep := string(os.PathListSeparator)
	env := New(nil)
	env.AppendPath("PKG_CONFIG_LIBDIR", "/a")
	env.AppendPath("PKG_CONFIG_LIBDIR", "/b")
	env.PrependPath("PKG_CONFIG_LIBDIR", "/z")

	assert.Equal(t, strings.Join([]string{"/z", "/a", "/b"}, sep), env.Lookup("PKG_CONFIG_LIBDIR"))
}

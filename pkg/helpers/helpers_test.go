package helpers

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upper(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("upper takes 1 argument, got %d", len(args))
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("upper: want string, got %T", args[0])
	}
	return strings.ToUpper(s), nil
}

func pure(fn Func) Helper {
	return Helper{Fn: fn, Description: "test helper", Version: "1.0.0", Capabilities: PureCapabilities}
}

type callCounter struct{ hits, misses int }

func (c *callCounter) RecordHelperCall(found bool) {
	if found {
		c.hits++
	} else {
		c.misses++
	}
}

func TestRegister_RejectsIncompleteCapabilityClaims(t *testing.T) {
	cases := map[string]Capabilities{
		"not pure":        {Pure: false, NoNetwork: true, NoFileSystem: true, NoEnvironment: true},
		"network":         {Pure: true, NoNetwork: false, NoFileSystem: true, NoEnvironment: true},
		"filesystem":      {Pure: true, NoNetwork: true, NoFileSystem: false, NoEnvironment: true},
		"environment":     {Pure: true, NoNetwork: true, NoFileSystem: true, NoEnvironment: false},
		"nothing claimed": {},
	}

	for name, caps := range cases {
		t.Run(name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Register("ext-a", Collection{"upper": {Fn: upper, Capabilities: caps}})
			assert.ErrorIs(t, err, ErrCapabilityClaim)
			assert.False(t, r.Has("ext-a", "upper"))
			_, ok := r.GetAll("ext-a")
			assert.False(t, ok)
		})
	}
}

func TestRegister_RejectsMalformedEntries(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Register("ext-a", Collection{"": pure(upper)}), ErrEmptyName)
	assert.ErrorIs(t, r.Register("ext-a", Collection{"x": {Capabilities: PureCapabilities}}), ErrNilHelper)
	assert.ErrorIs(t, r.Register("", Collection{"x": pure(upper)}), ErrEmptyExtensionID)
}

func TestRegister_FailureKeepsPreviousCollection(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("ext-a", Collection{"upper": pure(upper)}))

	err := r.Register("ext-a", Collection{"bad": {Fn: upper}})
	require.ErrorIs(t, err, ErrCapabilityClaim)

	assert.True(t, r.Has("ext-a", "upper"))
	assert.False(t, r.Has("ext-a", "bad"))
}

func TestRegister_ReplacesWholeCollection(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("ext-a", Collection{"one": pure(upper), "two": pure(upper)}))
	require.NoError(t, r.Register("ext-a", Collection{"three": pure(upper)}))

	all, ok := r.GetAll("ext-a")
	require.True(t, ok)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "three")
}

func TestRegister_ValidatorDecides(t *testing.T) {
	var seen string
	v := ValidatorFunc(func(extensionID string, c Collection) (bool, string) {
		seen = extensionID
		if _, ok := c["fetch"]; ok {
			return false, "fetch performs network access"
		}
		return true, ""
	})
	r := NewRegistry(WithValidator(v))

	err := r.Register("ext-a", Collection{"fetch": pure(upper)})
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "fetch performs network access")
	assert.Equal(t, "ext-a", seen)
	assert.False(t, r.Has("ext-a", "fetch"))

	require.NoError(t, r.Register("ext-a", Collection{"upper": pure(upper)}))
	assert.True(t, r.Has("ext-a", "upper"))
}

func TestGet_ReturnsExactFunctionAcrossExtensions(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Scoped("ext-a").Register(Collection{"foo": pure(upper)}))

	fromB := r.Scoped("ext-b")
	fn, ok := fromB.Get("ext-a", "foo")
	require.True(t, ok)
	assert.Equal(t, reflect.ValueOf(Func(upper)).Pointer(), reflect.ValueOf(fn).Pointer())

	out, err := fn("shout")
	require.NoError(t, err)
	assert.Equal(t, "SHOUT", out)

	// B's registrations never land in A's namespace.
	require.NoError(t, fromB.Register(Collection{"foo": pure(func(...any) (any, error) { return "b", nil })}))
	fnA, _ := r.Get("ext-a", "foo")
	assert.Equal(t, reflect.ValueOf(Func(upper)).Pointer(), reflect.ValueOf(fnA).Pointer())
}

func TestLookupMissesAreQuiet(t *testing.T) {
	r := NewRegistry()

	fn, ok := r.Get("nobody", "nothing")
	assert.False(t, ok)
	assert.Nil(t, fn)

	_, ok = r.GetAll("nobody")
	assert.False(t, ok)
	assert.False(t, r.Has("nobody", "nothing"))
	assert.Empty(t, r.List())
}

func TestGetAll_EmptyCollectionIsStillRegistered(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("ext-a", Collection{}))

	all, ok := r.GetAll("ext-a")
	assert.True(t, ok)
	assert.Empty(t, all)
}

func TestList_SortedMetadata(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("ext-b", Collection{"zeta": pure(upper), "alpha": pure(upper)}))
	require.NoError(t, r.Register("ext-a", Collection{"mid": pure(upper)}))

	list := r.List()
	require.Len(t, list, 3)
	got := []string{list[0].QualifiedName(), list[1].QualifiedName(), list[2].QualifiedName()}
	assert.Equal(t, []string{"ext-a.mid", "ext-b.alpha", "ext-b.zeta"}, got)
	assert.Equal(t, "test helper", list[0].Description)
	assert.Equal(t, PureCapabilities, list[0].Capabilities)
}

func TestCall(t *testing.T) {
	m := &callCounter{}
	r := NewRegistry(WithMetrics(m))
	require.NoError(t, r.Register("ext-a", Collection{"upper": pure(upper)}))

	out, err := r.Call("ext-a", "upper", "hi")
	require.NoError(t, err)
	assert.Equal(t, "HI", out)

	_, err = r.Call("ext-a", "lower", "hi")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Call("ext-a", "upper", 42)
	assert.Error(t, err)

	assert.Equal(t, 2, m.hits)
	assert.Equal(t, 1, m.misses)
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("ext-a", Collection{"upper": pure(upper)}))

	assert.True(t, r.Unregister("ext-a"))
	assert.False(t, r.Unregister("ext-a"))
	assert.False(t, r.Has("ext-a", "upper"))
}

func TestSearch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("formatter", Collection{"formatDate": pure(upper), "slugify": pure(upper)}))
	require.NoError(t, r.Register("crypto", Collection{"sha256": pure(upper)}))

	res := r.Search("fmtdate")
	require.NotEmpty(t, res)
	assert.Equal(t, "formatter.formatDate", res[0].QualifiedName())

	assert.Empty(t, r.Search("zzzz"))
	assert.Len(t, r.Search(""), 3)
}

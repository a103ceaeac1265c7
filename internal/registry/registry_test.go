package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespaced_PutAndGet(t *testing.T) {
	r := New[int]()
	r.Put("ext-a", "one", 1)
	r.Put("ext-b", "one", 11)

	v, ok := r.Get("ext-a", "one")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = r.Get("ext-b", "one")
	require.True(t, ok)
	assert.Equal(t, 11, v, "same name in another namespace must not collide")
}

func TestNamespaced_MissIsNotAnError(t *testing.T) {
	r := New[string]()

	v, ok := r.Get("nobody", "nothing")
	assert.False(t, ok)
	assert.Empty(t, v)

	all, ok := r.GetAll("nobody")
	assert.False(t, ok)
	assert.Nil(t, all)

	assert.False(t, r.Has("nobody", "nothing"))
	assert.False(t, r.Delete("nobody", "nothing"))
}

func TestNamespaced_ReplaceDropsPreviousCollection(t *testing.T) {
	r := New[int]()
	r.Replace("ext", map[string]int{"a": 1, "b": 2})
	r.Replace("ext", map[string]int{"c": 3})

	all, ok := r.GetAll("ext")
	require.True(t, ok)
	assert.Equal(t, map[string]int{"c": 3}, all)
	assert.False(t, r.Has("ext", "a"))
}

func TestNamespaced_ReplaceCopiesInput(t *testing.T) {
	r := New[int]()
	in := map[string]int{"a": 1}
	r.Replace("ext", in)
	in["b"] = 2

	assert.False(t, r.Has("ext", "b"))
}

func TestNamespaced_RemoveAllIsIdempotent(t *testing.T) {
	r := New[int]()
	r.Put("ext", "a", 1)
	r.Put("ext", "b", 2)

	assert.Equal(t, 2, r.RemoveAll("ext"))
	assert.Equal(t, 0, r.RemoveAll("ext"))
	assert.Equal(t, 0, r.RemoveAll("never-registered"))
	assert.Equal(t, 0, r.Len())
}

func TestNamespaced_EntriesSorted(t *testing.T) {
	r := New[int]()
	r.Put("b", "z", 1)
	r.Put("a", "y", 2)
	r.Put("a", "x", 3)

	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, Entry[int]{ExtensionID: "a", Name: "x", Value: 3}, entries[0])
	assert.Equal(t, Entry[int]{ExtensionID: "a", Name: "y", Value: 2}, entries[1])
	assert.Equal(t, Entry[int]{ExtensionID: "b", Name: "z", Value: 1}, entries[2])
	assert.Equal(t, []string{"a", "b"}, r.Extensions())
}

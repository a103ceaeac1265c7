package environment

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeSource(t *testing.T, names ...string) *Source {
	t.Helper()
	s := NewSource()
	s.SetKeys("dev", names)
	require.NoError(t, s.Switch("dev"))
	return s
}

func TestGetKeys_ReflectsActiveEnvironment(t *testing.T) {
	s := NewSource()
	assert.Empty(t, s.GetKeys())

	s.SetKeys("dev", []string{"TOKEN", "BASE_URL", "TOKEN", ""})
	s.SetKeys("prod", []string{"BASE_URL"})
	assert.Empty(t, s.GetKeys(), "nothing active yet")

	require.NoError(t, s.Switch("dev"))
	assert.Equal(t, []string{"BASE_URL", "TOKEN"}, s.GetKeys())
	assert.True(t, s.Has("TOKEN"))

	require.NoError(t, s.Switch("prod"))
	assert.Equal(t, []string{"BASE_URL"}, s.GetKeys())
	assert.False(t, s.Has("TOKEN"))
	assert.Equal(t, "prod", s.Active())
}

func TestGetKeys_ReturnsCopy(t *testing.T) {
	s := activeSource(t, "A", "B")
	keys := s.GetKeys()
	keys[0] = "MUTATED"
	assert.Equal(t, []string{"A", "B"}, s.GetKeys())
}

func TestSwitch_UnknownEnvironment(t *testing.T) {
	s := NewSource()
	assert.ErrorIs(t, s.Switch("staging"), ErrUnknownEnvironment)
}

func TestOnChange_FiresOnlyWhenKeySetChanges(t *testing.T) {
	s := activeSource(t, "A", "B")
	var got []Change
	unsub := s.OnChange(func(c Change) { got = append(got, c) })

	s.SetKeys("dev", []string{"B", "A"})
	assert.Empty(t, got, "same names in a different order is not a change")

	s.SetKeys("other", []string{"X"})
	assert.Empty(t, got, "inactive environments do not notify")

	s.SetKeys("dev", []string{"A", "C"})
	require.Len(t, got, 1)
	assert.Equal(t, Change{Environment: "dev", Keys: []string{"A", "C"}, Added: []string{"C"}, Removed: []string{"B"}}, got[0])

	require.NoError(t, s.Switch("other"))
	require.Len(t, got, 2)
	assert.Equal(t, "other", got[1].Environment)
	assert.Equal(t, []string{"X"}, got[1].Added)
	assert.Equal(t, []string{"A", "C"}, got[1].Removed)

	require.NoError(t, s.Switch("other"))
	assert.Len(t, got, 2, "switching to the active environment is a no-op")

	unsub()
	unsub()
	s.SetKeys("other", []string{"Y"})
	assert.Len(t, got, 2)
}

func TestClear(t *testing.T) {
	s := activeSource(t, "A")
	var got []Change
	s.OnChange(func(c Change) { got = append(got, c) })

	s.Clear()
	assert.Empty(t, s.GetKeys())
	assert.Equal(t, "", s.Active())
	require.Len(t, got, 1)
	assert.Equal(t, []string{"A"}, got[0].Removed)

	s.Clear()
	assert.Len(t, got, 1)
}

func TestLoadDotenv_KeepsNamesOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("API_TOKEN=super-secret-value\nBASE_URL=https://internal.example\n"), 0o600))

	s := NewSource()
	require.NoError(t, s.LoadDotenv("dev", path))

	var payloads []Change
	s.OnChange(func(c Change) { payloads = append(payloads, c) })
	require.NoError(t, s.Switch("dev"))

	assert.Equal(t, []string{"API_TOKEN", "BASE_URL"}, s.GetKeys())

	// Nothing the extension can observe contains a value.
	observed, err := json.Marshal(struct {
		Keys     []string
		Payloads []Change
	}{s.GetKeys(), payloads})
	require.NoError(t, err)
	assert.NotContains(t, string(observed), "super-secret-value")
	assert.NotContains(t, string(observed), "internal.example")
}

func TestLoadDotenv_MissingFile(t *testing.T) {
	s := NewSource()
	assert.Error(t, s.LoadDotenv("dev", filepath.Join(t.TempDir(), "missing.env")))
}

func TestView_CloseDropsSubscriptions(t *testing.T) {
	s := activeSource(t, "A")
	v := s.View()

	calls := 0
	v.OnChange(func(Change) { calls++ })
	v.OnChange(func(Change) { calls++ })
	assert.Equal(t, 2, s.Subscribers())
	assert.True(t, v.Has("A"))

	v.Close()
	assert.Equal(t, 0, s.Subscribers())

	v.OnChange(func(Change) { calls++ })
	s.SetKeys("dev", []string{"B"})
	assert.Zero(t, calls)
}

func TestPlaceholders(t *testing.T) {
	text := `{{BASE_URL}}/users/{{ USER_ID }}?t={{TOKEN}}&again={{BASE_URL}} {{not valid}} {{}}`
	assert.Equal(t, []string{"BASE_URL", "USER_ID", "TOKEN"}, Placeholders(text))
	assert.Nil(t, Placeholders("no placeholders"))
}

func TestUnknown(t *testing.T) {
	s := activeSource(t, "BASE_URL")
	assert.Equal(t, []string{"TOKEN"}, Unknown("{{BASE_URL}}?t={{TOKEN}}", s))
	assert.Nil(t, Unknown("{{BASE_URL}}", s))
}

func TestComplete(t *testing.T) {
	keys := []string{"BASE_URL", "API_TOKEN", "USER_ID"}

	assert.Equal(t, []string{"API_TOKEN", "BASE_URL", "USER_ID"}, Complete(keys, ""))
	assert.Equal(t, []string{"API_TOKEN", "BASE_URL", "USER_ID"}, Complete(keys, "{{"))

	res := Complete(keys, "{{tok")
	require.NotEmpty(t, res)
	assert.Equal(t, "API_TOKEN", res[0])
	assert.Empty(t, Complete(keys, "zzz"))
}

func TestResolve(t *testing.T) {
	values := map[string]string{"TOKEN": "s3cret", "HOST": "api.local"}
	lookup := func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}

	got := Resolve("https://{{HOST}}/v1?t={{ TOKEN }}&x={{MISSING}}", lookup)
	assert.Equal(t, "https://api.local/v1?t=s3cret&x={{MISSING}}", got)
	assert.Equal(t, "plain", Resolve("plain", lookup))
}

package source

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/patrickjm/patsearch/internal/locator"
)

func TestStoreUpsertLoad(t *testing.T) {
	store := Store{Root: t.TempDir()}
	d, created, err := store.Upsert("My Office", Overrides{SearchURL: "https://office.example/search"})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "my-office", d.Name)
	require.Equal(t, DefaultMaxPages, d.MaxPages)

	loaded, err := store.Load("my-office")
	require.NoError(t, err)
	require.Equal(t, "https://office.example/search", loaded.SearchURL)

	pages := 2
	d, created, err = store.Upsert("my-office", Overrides{MaxPages: &pages})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, 2, d.MaxPages)

	_, err = store.Load("missing")
	require.Error(t, err)
	require.Equal(t, "source.json", filepath.Base(store.SourcePath("my-office")))
}

func TestStoreRejectsInvalidDescriptor(t *testing.T) {
	store := Store{Root: t.TempDir()}
	_, _, err := store.Upsert("broken", Overrides{SearchURL: "not a url"})
	require.Error(t, err)
	_, _, err = store.Upsert("broken", Overrides{SearchURL: "https://x.example", QueryURL: "https://x.example/q"})
	require.ErrorContains(t, err, "{query}")
}

func TestStoreNeverWritesCredentials(t *testing.T) {
	store := Store{Root: t.TempDir()}
	d := Descriptor{Name: "secret", SearchURL: "https://x.example", Credentials: &Credentials{Username: "u", Password: "hunter2"}}
	require.NoError(t, store.Save(d))
	b, err := os.ReadFile(store.SourcePath("secret"))
	require.NoError(t, err)
	require.NotContains(t, string(b), "hunter2")
}

func TestResolvePrefersStoredOverBuiltin(t *testing.T) {
	store := Store{Root: t.TempDir()}
	d, err := store.Resolve("patentscope")
	require.NoError(t, err)
	require.False(t, d.RequiresAuth)
	require.NotEmpty(t, d.NextPage)

	_, _, err = store.Upsert("patentscope", Overrides{SearchURL: "https://mirror.example/search"})
	require.NoError(t, err)
	d, err = store.Resolve("PatentScope")
	require.NoError(t, err)
	require.Equal(t, "https://mirror.example/search", d.SearchURL)
	require.NotEmpty(t, d.Locators[locator.KindSearch].QueryField, "built-in defaults carried into the override")

	_, err = store.Resolve("nowhere")
	require.True(t, errors.Is(err, ErrUnknownSource))

	all, err := store.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestRemoveAndTouch(t *testing.T) {
	store := Store{Root: t.TempDir()}
	d, _, err := store.Upsert("tmp", Overrides{SearchURL: "https://x.example"})
	require.NoError(t, err)
	d.LastUsed = time.Now().Add(-time.Hour).UTC()
	require.NoError(t, store.Save(d))
	touched, err := store.Touch("tmp")
	require.NoError(t, err)
	require.True(t, touched.LastUsed.After(d.LastUsed))
	require.NoError(t, store.Remove("tmp"))
	list, err := store.List()
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestDescriptorDefaultsAndEntries(t *testing.T) {
	d := Descriptor{Name: "x", SearchURL: "https://x.example/s", QueryURL: "https://x.example/r?q={query}"}
	require.Equal(t, DefaultMaxPages, d.PageLimit())
	require.Equal(t, DefaultStepTimeout, d.StepTimeout())
	require.Equal(t, "https://x.example/s", d.LoginEntry())
	require.True(t, d.DirectQuery())
	require.Equal(t, "https://x.example/r?q=acido+acetil", d.QueryEntry("acido acetil"))
	require.NoError(t, d.Validate())
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("ACME_USERNAME", "alice")
	t.Setenv("ACME_PASSWORD", "pw")
	c, err := ResolveEnv("acme")
	require.NoError(t, err)
	require.Equal(t, "alice", c.Username)
	require.NotContains(t, c.String(), "pw")

	_, err = ResolveEnv("nobody")
	require.ErrorContains(t, err, "NOBODY_USERNAME")
}

func TestStoreRejectsNamesOutsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "sources")
	sibling := filepath.Join(parent, "keep")
	require.NoError(t, os.MkdirAll(sibling, 0o755))
	store := Store{Root: root}

	for _, name := range []string{"../x", "..", "../..", "a/b", `a\b`, "."} {
		_, err := store.Resolve(name)
		require.ErrorIs(t, err, ErrInvalidName, name)
		_, err = store.Touch(name)
		require.ErrorIs(t, err, ErrInvalidName, name)
		_, _, err = store.Upsert(name, Overrides{SearchURL: "https://office.example/search"})
		require.ErrorIs(t, err, ErrInvalidName, name)
		require.ErrorIs(t, store.Remove(name), ErrInvalidName, name)
	}
	_, err := os.Stat(sibling)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(parent, "x"))
	require.True(t, os.IsNotExist(err))
}

func TestConcurrentTouchLeavesValidFile(t *testing.T) {
	store := Store{Root: t.TempDir()}
	_, _, err := store.Upsert("busy", Overrides{SearchURL: "https://office.example/search"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Touch("busy")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	b, err := os.ReadFile(store.SourcePath("busy"))
	require.NoError(t, err)
	var d Descriptor
	require.NoError(t, json.Unmarshal(b, &d))
	require.Equal(t, "busy", d.Name)

	entries, err := os.ReadDir(store.SourceDir("busy"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

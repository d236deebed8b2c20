package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	ErrUnknownSource = errors.New("unknown source")
	ErrInvalidName   = errors.New("invalid source name")
)

// Store keeps user-defined descriptors as <Root>/<name>/source.json.
type Store struct {
	Root string
}

func (s Store) EnsureDir() error {
	return os.MkdirAll(s.Root, 0o755)
}

func (s Store) SourceDir(name string) string {
	return filepath.Join(s.Root, sanitizeName(name))
}

func (s Store) SourcePath(name string) string {
	return filepath.Join(s.SourceDir(name), "source.json")
}

func (s Store) Load(name string) (Descriptor, error) {
	if err := checkName(name); err != nil {
		return Descriptor{}, err
	}
	b, err := os.ReadFile(s.SourcePath(name))
	if err != nil {
		return Descriptor{}, err
	}
	var d Descriptor
	if err := json.Unmarshal(b, &d); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

func (s Store) Save(d Descriptor) error {
	if err := s.EnsureDir(); err != nil {
		return err
	}
	d.Name = sanitizeName(d.Name)
	if err := checkName(d.Name); err != nil {
		return err
	}
	if err := d.Validate(); err != nil {
		return err
	}
	dir := s.SourceDir(d.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	d.Credentials = nil
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(dir, s.SourcePath(d.Name), b)
}

// writeFileAtomic replaces path via a temp file in dir so concurrent
// writers never leave a torn source.json behind.
func writeFileAtomic(dir, path string, b []byte) error {
	tmp, err := os.CreateTemp(dir, "source-*.json")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

func (s Store) List() ([]Descriptor, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Descriptor, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		d, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// All lists stored descriptors plus the built-ins they do not shadow.
func (s Store) All() ([]Descriptor, error) {
	stored, err := s.List()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(stored))
	for _, d := range stored {
		seen[d.Name] = true
	}
	out := append([]Descriptor{}, stored...)
	for _, d := range Builtins() {
		if !seen[d.Name] {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Resolve finds a descriptor by name, preferring stored ones over built-ins.
func (s Store) Resolve(name string) (Descriptor, error) {
	name = sanitizeName(name)
	if err := checkName(name); err != nil {
		return Descriptor{}, err
	}
	d, err := s.Load(name)
	if err == nil {
		return d, nil
	}
	if !os.IsNotExist(err) {
		return Descriptor{}, err
	}
	if d, ok := Builtin(name); ok {
		return d, nil
	}
	return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownSource, name)
}

func (s Store) Remove(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	return os.RemoveAll(s.SourceDir(name))
}

// Upsert creates a descriptor from overrides or applies them to the stored
// one. A new source needs at least a search URL.
func (s Store) Upsert(name string, overrides Overrides) (Descriptor, bool, error) {
	name = sanitizeName(name)
	if err := checkName(name); err != nil {
		return Descriptor{}, false, err
	}
	d, err := s.Load(name)
	if err != nil {
		if !os.IsNotExist(err) {
			return Descriptor{}, false, err
		}
		if base, ok := Builtin(name); ok {
			d = base
		} else {
			d = Descriptor{Name: name, MaxPages: DefaultMaxPages, StepTimeoutMs: DefaultStepTimeout.Milliseconds()}
		}
		d.CreatedAt = time.Now().UTC()
		d.LastUsed = d.CreatedAt
		applyOverrides(&d, overrides)
		if err := s.Save(d); err != nil {
			return Descriptor{}, false, err
		}
		return d, true, nil
	}
	if applyOverrides(&d, overrides) {
		if err := s.Save(d); err != nil {
			return Descriptor{}, false, err
		}
	}
	return d, false, nil
}

func (s Store) Touch(name string) (Descriptor, error) {
	d, err := s.Load(name)
	if err != nil {
		return Descriptor{}, err
	}
	d.LastUsed = time.Now().UTC()
	return d, s.Save(d)
}

type Overrides struct {
	SearchURL     string
	LoginURL      string
	QueryURL      string
	CredentialRef string
	RequiresAuth  *bool
	MaxPages      *int
	StepTimeout   *time.Duration
	NextPage      []string
}

func applyOverrides(d *Descriptor, o Overrides) bool {
	updated := false
	if o.SearchURL != "" {
		d.SearchURL = o.SearchURL
		updated = true
	}
	if o.LoginURL != "" {
		d.LoginURL = o.LoginURL
		updated = true
	}
	if o.QueryURL != "" {
		d.QueryURL = o.QueryURL
		updated = true
	}
	if o.CredentialRef != "" {
		d.CredentialRef = o.CredentialRef
		updated = true
	}
	if o.RequiresAuth != nil {
		d.RequiresAuth = *o.RequiresAuth
		updated = true
	}
	if o.MaxPages != nil {
		d.MaxPages = *o.MaxPages
		updated = true
	}
	if o.StepTimeout != nil {
		d.StepTimeoutMs = o.StepTimeout.Milliseconds()
		updated = true
	}
	if len(o.NextPage) > 0 {
		d.NextPage = append([]string{}, o.NextPage...)
		updated = true
	}
	return updated
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "-")
	return name
}

// checkName keeps a name to a single directory under Root.
func checkName(name string) error {
	name = sanitizeName(name)
	if name == "" {
		return errors.New("source name required")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s auth=%t max_pages=%d)", d.Name, d.SearchURL, d.RequiresAuth, d.PageLimit())
}

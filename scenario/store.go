package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tailored-agentic-units/parley/transcript"
)

// Store resolves scenarios by name.
type Store interface {
	// List returns the names of all available scenarios.
	List(ctx context.Context) ([]string, error)
	// Load returns the named scenario or an error wrapping ErrUnknown.
	Load(ctx context.Context, name string) (Scenario, error)
}

type memoryStore struct {
	scenarios map[string]Scenario
}

// NewMemoryStore creates a Store holding the given scenarios, keyed by Name.
func NewMemoryStore(scenarios ...Scenario) Store {
	m := &memoryStore{scenarios: make(map[string]Scenario, len(scenarios))}
	for _, s := range scenarios {
		m.scenarios[s.Name] = s
	}
	return m
}

func (m *memoryStore) List(context.Context) ([]string, error) {
	names := make([]string, 0, len(m.scenarios))
	for name := range m.scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memoryStore) Load(_ context.Context, name string) (Scenario, error) {
	s, ok := m.scenarios[name]
	if !ok {
		return Scenario{}, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return s, nil
}

type fileStore struct {
	root string
}

// NewFileStore creates a Store backed by <root>/<name>.json files. Hidden
// files and subdirectories are ignored.
func NewFileStore(root string) Store {
	return &fileStore{root: root}
}

func (s *fileStore) List(context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list scenarios: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)
	return names, nil
}

func (s *fileStore) Load(_ context.Context, name string) (Scenario, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return Scenario{}, fmt.Errorf("%w: %q", ErrUnknown, name)
	}

	data, err := os.ReadFile(filepath.Join(s.root, name+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Scenario{}, fmt.Errorf("%w: %s", ErrUnknown, name)
		}
		return Scenario{}, fmt.Errorf("load scenario %s: %w", name, err)
	}

	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("%w: parse scenario %s: %v", transcript.ErrConfiguration, name, err)
	}
	if sc.Name == "" {
		sc.Name = name
	}
	return sc, nil
}

type layered []Store

// Layered creates a Store that consults stores in order; earlier stores
// shadow later ones.
func Layered(stores ...Store) Store {
	return layered(stores)
}

func (l layered) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	for _, s := range l {
		ns, err := s.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, n := range ns {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func (l layered) Load(ctx context.Context, name string) (Scenario, error) {
	for _, s := range l {
		sc, err := s.Load(ctx, name)
		if err == nil {
			return sc, nil
		}
		if !errors.Is(err, ErrUnknown) {
			return Scenario{}, err
		}
	}
	return Scenario{}, fmt.Errorf("%w: %s", ErrUnknown, name)
}

package backend

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/johndauphine/dualstore-migrate/internal/dialect"
)

// registry maps lower-cased driver names and aliases to drivers. Driver
// packages fill it from init().
var registry = struct {
	sync.RWMutex
	byName  map[string]Driver
	primary map[string]Driver
}{
	byName:  make(map[string]Driver),
	primary: make(map[string]Driver),
}

// Register adds a driver under its name and every alias.
//
// Panics if the name or an alias is already taken.
func Register(d Driver) {
	registry.Lock()
	defer registry.Unlock()

	keys := append([]string{d.Name()}, d.Aliases()...)
	for _, k := range keys {
		k = strings.ToLower(k)
		if prev, exists := registry.byName[k]; exists {
			panic(fmt.Sprintf("driver name %q already registered by %s", k, prev.Name()))
		}
	}
	for _, k := range keys {
		registry.byName[strings.ToLower(k)] = d
	}
	registry.primary[d.Name()] = d
}

// Get retrieves a driver by name or alias (case-insensitive).
func Get(nameOrAlias string) (Driver, error) {
	registry.RLock()
	defer registry.RUnlock()

	d, exists := registry.byName[strings.ToLower(nameOrAlias)]
	if !exists {
		return nil, fmt.Errorf("unknown database driver: %q (available: %s)", nameOrAlias, strings.Join(availableLocked(), ", "))
	}
	return d, nil
}

// Canonicalize returns the primary driver name for a name or alias, or the
// input unchanged if nothing matches.
func Canonicalize(nameOrAlias string) string {
	d, err := Get(nameOrAlias)
	if err != nil {
		return nameOrAlias
	}
	return d.Name()
}

// ForKind returns the sorted primary names of drivers serving kind.
func ForKind(kind dialect.Kind) []string {
	registry.RLock()
	defer registry.RUnlock()

	var names []string
	for name, d := range registry.primary {
		if d.Kind() == kind {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Available returns the sorted primary names of every registered driver.
func Available() []string {
	registry.RLock()
	defer registry.RUnlock()
	return availableLocked()
}

func availableLocked() []string {
	names := make([]string, 0, len(registry.primary))
	for name := range registry.primary {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// driverFor resolves driverName and checks it serves the backend called
// name, when name itself spells a kind ("relational", "embedded", ...).
func driverFor(name, driverName string) (Driver, error) {
	d, err := Get(driverName)
	if err != nil {
		return nil, err
	}
	if want, kerr := dialect.ParseKind(name); kerr == nil && want != d.Kind() {
		return nil, fmt.Errorf("driver %s serves %s backends, not %s (use one of: %s)",
			d.Name(), d.Kind(), want, strings.Join(ForKind(want), ", "))
	}
	return d, nil
}

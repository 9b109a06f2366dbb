// Package naming allocates document identifiers and session-unique display
// names.
package naming

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"
)

// Generator creates opaque identifiers.
type Generator interface {
	New() string
}

// UUIDGenerator yields random UUID v4 strings.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string {
	return uuid.NewString()
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func() string

func (f GeneratorFunc) New() string {
	return f()
}

// stem and optional last extension
var extPattern = regexp.MustCompile(`^(.*?)(\.[^.]+)?$`)

// SplitExt splits name at its last dot-delimited extension. The extension
// keeps its leading dot.
func SplitExt(name string) (stem, ext string) {
	m := extPattern.FindStringSubmatch(name)
	if m == nil {
		return name, ""
	}
	return m[1], m[2]
}

// SafeBaseName drops the last extension from name.
func SafeBaseName(name string) string {
	stem, _ := SplitExt(name)
	return stem
}

// NextID draws identifiers from gen until one is absent from existing, records
// it and returns it.
func NextID(gen Generator, existing map[string]struct{}) string {
	if gen == nil {
		gen = UUIDGenerator{}
	}
	for {
		id := gen.New()
		if _, taken := existing[id]; !taken {
			existing[id] = struct{}{}
			return id
		}
	}
}

// NextDisplayName returns original when it is free. Otherwise it probes
// "stem (n).ext" for n = 2, 3, ... The returned name is recorded in existing.
func NextDisplayName(original string, existing map[string]struct{}) string {
	name := original
	if _, taken := existing[name]; taken {
		stem, ext := SplitExt(original)
		for n := 2; ; n++ {
			name = fmt.Sprintf("%s (%d)%s", stem, n, ext)
			if _, taken := existing[name]; !taken {
				break
			}
		}
	}
	existing[name] = struct{}{}
	return name
}

// Allocator hands out IDs and display names that never collide with each
// other or with the names it was seeded with.
type Allocator struct {
	mu    sync.Mutex
	gen   Generator
	ids   map[string]struct{}
	names map[string]struct{}
}

// NewAllocator seeds an allocator with names and IDs already in use.
func NewAllocator(gen Generator, usedIDs, usedNames []string) *Allocator {
	if gen == nil {
		gen = UUIDGenerator{}
	}
	a := &Allocator{
		gen:   gen,
		ids:   make(map[string]struct{}, len(usedIDs)),
		names: make(map[string]struct{}, len(usedNames)),
	}
	for _, id := range usedIDs {
		a.ids[id] = struct{}{}
	}
	for _, n := range usedNames {
		a.names[n] = struct{}{}
	}
	return a
}

// ID returns a fresh identifier.
func (a *Allocator) ID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return NextID(a.gen, a.ids)
}

// DisplayName returns a unique display name derived from original.
func (a *Allocator) DisplayName(original string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return NextDisplayName(original, a.names)
}

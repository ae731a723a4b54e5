// Package prompt composes the system prompt from a core text, registered
// sections, and live context providers.
package prompt

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// DefaultSectionPriority orders sections without an explicit priority.
const DefaultSectionPriority = 100

// Section is one static prompt contribution.
type Section struct {
	ID       string
	PluginID string
	Priority int // lower renders first; 0 means DefaultSectionPriority
	Content  string
}

func (s Section) effectivePriority() int {
	if s.Priority == 0 {
		return DefaultSectionPriority
	}
	return s.Priority
}

// ContextProvider supplies dynamic prompt content at assemble time.
type ContextProvider func(ctx context.Context) string

// Assembler owns the core prompt, sections, and context providers.
type Assembler struct {
	mu        sync.RWMutex
	core      string
	sections  []Section
	nextSeq   int
	seq       map[string]int
	providers []ContextProvider
}

// NewAssembler creates an assembler with the given core prompt.
func NewAssembler(core string) *Assembler {
	return &Assembler{core: core, seq: make(map[string]int)}
}

// SetCore replaces the core prompt text.
func (a *Assembler) SetCore(core string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.core = core
}

// AddSection registers a static section.
func (a *Assembler) AddSection(s Section) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq[s.ID] = a.nextSeq
	a.nextSeq++
	a.sections = append(a.sections, s)
}

// AddProvider registers a context provider invoked on every assemble.
func (a *Assembler) AddProvider(p ContextProvider) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.providers = append(a.providers, p)
}

// Assemble renders core + priority-sorted sections + provider outputs,
// joined by blank lines with empty parts skipped.
func (a *Assembler) Assemble(ctx context.Context) string {
	a.mu.RLock()
	core := a.core
	sections := append([]Section(nil), a.sections...)
	providers := append([]ContextProvider(nil), a.providers...)
	seq := a.seq
	a.mu.RUnlock()

	sort.SliceStable(sections, func(i, j int) bool {
		pi, pj := sections[i].effectivePriority(), sections[j].effectivePriority()
		if pi != pj {
			return pi < pj
		}
		return seq[sections[i].ID] < seq[sections[j].ID]
	})

	parts := make([]string, 0, 1+len(sections)+len(providers))
	if core != "" {
		parts = append(parts, core)
	}
	for _, s := range sections {
		if s.Content != "" {
			parts = append(parts, s.Content)
		}
	}
	for _, p := range providers {
		if out := p(ctx); out != "" {
			parts = append(parts, out)
		}
	}
	return strings.Join(parts, "\n\n")
}

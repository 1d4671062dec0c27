package tools

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"sync"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return domain.WrapError(domain.ErrInvalidInput, "register tool", fmt.Errorf("tool is nil"))
	}
	name := tool.Schema().Name
	if !toolNamePattern.MatchString(name) {
		return domain.WrapError(domain.ErrInvalidInput, "register tool", fmt.Errorf("invalid tool name %q", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return domain.WrapError(domain.ErrInvalidInput, "register tool", fmt.Errorf("tool %s already registered", name))
	}
	r.tools[name] = tool
	return nil
}

// MustRegister panics on registration errors; meant for startup wiring.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// IsToolAvailable reports whether name may be used under access. A nil list
// allows every tool, an empty list allows none.
func (r *Registry) IsToolAvailable(name string, access []string) bool {
	if _, ok := r.Get(name); !ok {
		return false
	}
	if access == nil {
		return true
	}
	return slices.Contains(access, name)
}

// Schemas lists the schemas visible under access, sorted by name.
func (r *Registry) Schemas(access []string) []Schema {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		if access == nil || slices.Contains(access, name) {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()
	sort.Strings(names)

	out := make([]Schema, 0, len(names))
	for _, name := range names {
		if tool, ok := r.Get(name); ok {
			out = append(out, tool.Schema())
		}
	}
	return out
}

// ByAccess lists the names of tools carrying the given tag.
func (r *Registry) ByAccess(level AccessLevel) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0)
	for name, tool := range r.tools {
		if tool.Access() == level {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Names lists every registered tool, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

const DefaultAgentName = "default"

// AgentProfiles holds the named agent configurations. The first profile in
// the file is the default.
type AgentProfiles struct {
	byName      map[string]domain.AgentProfile
	defaultName string
}

type profilesFile struct {
	Agents []domain.AgentProfile `yaml:"agents"`
}

// LoadAgentProfiles reads the YAML profile file. An empty path yields a
// single default agent with access to every tool.
func LoadAgentProfiles(path string) (*AgentProfiles, error) {
	if strings.TrimSpace(path) == "" {
		return NewAgentProfiles(domain.AgentProfile{Name: DefaultAgentName})
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent profiles: %w", err)
	}
	return ParseAgentProfiles(raw)
}

func ParseAgentProfiles(raw []byte) (*AgentProfiles, error) {
	var file profilesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse agent profiles: %w", err)
	}
	if len(file.Agents) == 0 {
		return nil, fmt.Errorf("agent profiles: at least one agent is required")
	}
	return NewAgentProfiles(file.Agents...)
}

func NewAgentProfiles(profiles ...domain.AgentProfile) (*AgentProfiles, error) {
	out := &AgentProfiles{byName: make(map[string]domain.AgentProfile, len(profiles))}
	for i, p := range profiles {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("agent profiles: agent #%d has no name", i+1)
		}
		if _, dup := out.byName[p.Name]; dup {
			return nil, fmt.Errorf("agent profiles: duplicate agent %q", p.Name)
		}
		if p.Retrieval != nil && (p.Retrieval.InitialK < 0 || p.Retrieval.TopK < 0 || p.Retrieval.MaxFinalChunks < 0) {
			return nil, fmt.Errorf("agent profiles: agent %q has negative retrieval values", p.Name)
		}
		out.byName[p.Name] = p
		if out.defaultName == "" {
			out.defaultName = p.Name
		}
	}
	return out, nil
}

// Get resolves name, falling back to the default profile for an empty name.
func (a *AgentProfiles) Get(name string) (domain.AgentProfile, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = a.defaultName
	}
	p, ok := a.byName[name]
	return p, ok
}

func (a *AgentProfiles) Default() domain.AgentProfile {
	return a.byName[a.defaultName]
}

// Package roles loads role-definition markdown files and slices an
// agent-specific section out of a shared craft-standards document — the
// identity material herd_spawn and herd_assume assemble into an agent's
// context payload. Role and craft-standards files are plain markdown
// with no frontmatter; role files are read whole and the craft-standards
// document is sliced by heading.
//
// Skill listings come from the population registry when one is attached:
// installed skill packages are enumerated through the registry client
// and briefed from each package's vega.yaml manifest, so a spawned
// agent's context payload names the skills actually available on the
// host instead of a hand-maintained list.
package roles

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/everydev1618/vega-population/population"
)

// Store resolves role files and craft-standards sections from a directory
// tree, by convention:
//
//	<dir>/roles/<name>.md        role definition
//	<dir>/craft-standards.md     shared document, sliced by heading
//	<dir>/project-guidelines.md  shared document, used whole
type Store struct {
	dir string
	pop *population.Client
}

// New returns a Store rooted at dir, with no skill registry attached.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// AttachPopulation connects the store to the local population registry
// so InstalledSkills can enumerate skill packages. Returns the client
// init error for the caller to log; the store stays usable either way.
func (s *Store) AttachPopulation() error {
	client, err := population.NewClient()
	if err != nil {
		return err
	}
	s.pop = client
	return nil
}

// placeholder is substituted whenever a role document is missing, so a
// spawn or assume never fails outright on an absent file.
const placeholder = "(no role definition available)"

// RoleDefinition reads <dir>/roles/<name>.md, or the placeholder if absent.
func (s *Store) RoleDefinition(name string) string {
	data, err := os.ReadFile(filepath.Join(s.dir, "roles", name+".md"))
	if err != nil {
		return placeholder
	}
	return strings.TrimSpace(string(data))
}

// ProjectGuidelines reads <dir>/project-guidelines.md whole, or the
// placeholder if absent.
func (s *Store) ProjectGuidelines() string {
	data, err := os.ReadFile(filepath.Join(s.dir, "project-guidelines.md"))
	if err != nil {
		return placeholder
	}
	return strings.TrimSpace(string(data))
}

// StatusDocument reads <dir>/status.md, the shared current-state note
// herd_assume folds into an identity prompt. Empty when absent — unlike
// the role files, a missing status document is normal, not a gap to
// paper over with a placeholder.
func (s *Store) StatusDocument() string {
	data, err := os.ReadFile(filepath.Join(s.dir, "status.md"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// craftSectionHeading matches "## <Name> — ... Craft Standards" headings.
// The dash after the name may be a hyphen or colon in practice, so all
// three are accepted.
func craftSectionHeading(name string) *regexp.Regexp {
	escaped := regexp.QuoteMeta(name)
	return regexp.MustCompile(`(?im)^##\s+` + escaped + `\s*[-—:].*Craft Standards.*$`)
}

// ExtractCraftSection slices the section of the shared craft-standards
// document belonging to agentName: the text from that agent's "## <Name>
// — ... Craft Standards" heading up to (but not including) the next
// level-2 heading, or the end of the document. Returns the placeholder
// if the file or the agent's section is missing.
func (s *Store) ExtractCraftSection(agentName string) string {
	data, err := os.ReadFile(filepath.Join(s.dir, "craft-standards.md"))
	if err != nil {
		return placeholder
	}
	return extractSection(string(data), agentName)
}

func extractSection(doc, agentName string) string {
	heading := craftSectionHeading(agentName)
	loc := heading.FindStringIndex(doc)
	if loc == nil {
		return placeholder
	}

	rest := doc[loc[1]:]
	nextHeading := regexp.MustCompile(`(?m)^##\s+`)
	if end := nextHeading.FindStringIndex(rest); end != nil {
		rest = rest[:end[0]]
	}

	section := doc[loc[0]:loc[1]] + rest
	return strings.TrimSpace(section)
}

// InstalledSkills lists the skill packages installed in the population
// registry, one "name vVersion" line per skill, with the first line of
// the package's manifest prompt appended as a brief when present.
// Returns nil when no registry is attached or the listing fails — a
// host with no skill registry simply briefs its agents without one.
func (s *Store) InstalledSkills() []string {
	if s.pop == nil {
		return nil
	}
	items, err := s.pop.List(population.KindSkill)
	if err != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		line := item.Name
		if item.Version != "" {
			line += " v" + item.Version
		}
		if manifest, err := population.LoadManifest(filepath.Join(item.Path, "vega.yaml")); err == nil {
			if brief := firstLine(manifest.SystemPrompt); brief != "" {
				line += ": " + brief
			}
		}
		out = append(out, line)
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// KnownAgents lists every role name with a corresponding <dir>/roles/*.md
// file, for herd_assume's "unknown agent" error payload.
func (s *Store) KnownAgents() []string {
	entries, err := os.ReadDir(filepath.Join(s.dir, "roles"))
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".md"))
	}
	return names
}

// ErrUnknownAgent returns the "unknown agent" error for name. No lookup in
// this package returns it; herd_assume reports unknown agents in its
// result map.
func ErrUnknownAgent(name string) error {
	return fmt.Errorf("unknown agent %q", name)
}

// Package skills discovers capability documents on disk and serves them to
// the agent by name.
//
// A skill is a directory containing a SKILL.md file whose YAML frontmatter
// names and describes it. Roots are scanned one and two levels deep, so both
// <root>/<skill>/SKILL.md and <root>/<group>/<skill>/SKILL.md are found.
package skills

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultLoadConcurrency = 8

// Registry is the catalog of loaded skills. It is safe for concurrent use.
type Registry struct {
	roots       []string
	logger      *zap.Logger
	concurrency int

	mu      sync.RWMutex
	skills  []Skill
	byName  map[string]int
	scanned bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithConcurrency bounds how many documents are read at once.
func WithConcurrency(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewRegistry creates an empty registry over roots. Nothing is read until
// Discover, or until the first lookup.
func NewRegistry(roots []string, opts ...Option) *Registry {
	r := &Registry{
		logger:      zap.NewNop(),
		concurrency: defaultLoadConcurrency,
		byName:      map[string]int{},
	}
	for _, root := range roots {
		if root == "" {
			continue
		}
		r.roots = append(r.roots, expandHome(root))
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Roots returns the configured search roots.
func (r *Registry) Roots() []string {
	return append([]string(nil), r.roots...)
}

// Discover rescans every root and replaces the catalog. Readers never see a
// partially built catalog. Unreadable or malformed documents are skipped.
func (r *Registry) Discover(ctx context.Context) ([]Skill, error) {
	candidates := r.candidates()

	loaded := make([]*Skill, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, dir := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			loaded[i] = r.load(dir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("discover skills: %w", err)
	}

	skills := make([]Skill, 0, len(loaded))
	byName := make(map[string]int, len(loaded))
	for _, s := range loaded {
		if s == nil {
			continue
		}
		if _, dup := byName[s.Name]; dup {
			r.logger.Debug("duplicate skill ignored",
				zap.String("name", s.Name),
				zap.String("path", s.SourcePath))
			continue
		}
		byName[s.Name] = len(skills)
		skills = append(skills, *s)
	}

	r.mu.Lock()
	r.skills = skills
	r.byName = byName
	r.scanned = true
	r.mu.Unlock()

	r.logger.Debug("skills discovered", zap.Int("count", len(skills)), zap.Int("candidates", len(candidates)))
	return append([]Skill(nil), skills...), nil
}

// candidates lists every directory that may hold a document, in discovery
// order: roots as configured, entries lexically, each entry before its
// children.
func (r *Registry) candidates() []string {
	var dirs []string
	for _, root := range r.roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				r.logger.Debug("skill root unreadable", zap.String("root", root), zap.Error(err))
			}
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(root, entry.Name())
			dirs = append(dirs, dir)

			nested, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, n := range nested {
				if n.IsDir() {
					dirs = append(dirs, filepath.Join(dir, n.Name()))
				}
			}
		}
	}
	return dirs
}

func (r *Registry) load(dir string) *Skill {
	path := filepath.Join(dir, DocumentName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Debug("skill document unreadable", zap.String("path", path), zap.Error(err))
		}
		return nil
	}

	doc, err := ParseDocument(string(data))
	if err == nil {
		err = doc.Validate()
	}
	if err != nil {
		r.logger.Debug("skill document skipped", zap.String("path", path), zap.Error(err))
		return nil
	}

	s := newSkill(dir, doc)
	return &s
}

func (r *Registry) ensureScanned() {
	r.mu.RLock()
	scanned := r.scanned
	r.mu.RUnlock()
	if scanned {
		return
	}
	if _, err := r.Discover(context.Background()); err != nil {
		r.logger.Warn("lazy skill discovery failed", zap.Error(err))
	}
}

// Get returns the named skill, scanning the roots first if they have never
// been scanned.
func (r *Registry) Get(name string) (Skill, bool) {
	r.ensureScanned()

	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byName[name]
	if !ok {
		return Skill{}, false
	}
	return r.skills[i], true
}

// Skills returns the catalog in discovery order.
func (r *Registry) Skills() []Skill {
	r.ensureScanned()

	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Skill(nil), r.skills...)
}

// Names returns the sorted skill names.
func (r *Registry) Names() []string {
	r.ensureScanned()

	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Descriptions renders one "name: description" line per skill in discovery
// order, for inclusion in every prompt. Bodies are left out. It returns ""
// when no skills are loaded.
func (r *Registry) Descriptions() string {
	skills := r.Skills()
	if len(skills) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Available Skills\n\n")
	for _, s := range skills {
		fmt.Fprintf(&sb, "- %s: %s\n", s.Name, s.Description)
	}
	sb.WriteString("\nUse [SKILL LOAD <name>] to read a skill's full instructions.")
	return sb.String()
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return filepath.Clean(path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

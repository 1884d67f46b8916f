package status

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is the static description of a recurring status effect, loaded
// from YAML.
type Definition struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Interval is the default number of ticks between activations.
	Interval int `yaml:"interval"`
	// Times is the default activation count; 0 means DefaultTimes.
	Times int `yaml:"times"`
	// Sound is an optional sound cue played with the notification.
	Sound string `yaml:"sound"`
	// LuaOnTrigger names a global Lua function run on every activation.
	LuaOnTrigger string `yaml:"lua_on_trigger"`
}

// Registry holds all known Definitions keyed by ID.
type Registry struct {
	defs map[string]*Definition
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds def, overwriting any existing entry with the same ID.
//
// Precondition: def must not be nil and def.ID must not be empty.
func (r *Registry) Register(def *Definition) {
	r.defs[def.ID] = def
}

// Get returns the Definition for id, or (nil, false) if not found.
func (r *Registry) Get(id string) (*Definition, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// All returns the registered definitions sorted by ID.
func (r *Registry) All() []*Definition {
	out := make([]*Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadDirectory reads every *.yaml file in dir as a Definition.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil Registry, or an error naming the first bad file.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading status dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var def Definition
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := def.validate(); err != nil {
			return nil, fmt.Errorf("%q: %w", path, err)
		}
		reg.Register(&def)
	}
	return reg, nil
}

func (d *Definition) validate() error {
	switch {
	case d.ID == "":
		return fmt.Errorf("id is required")
	case d.Interval < 0:
		return fmt.Errorf("interval must be >= 0, got %d", d.Interval)
	case d.Times < 0:
		return fmt.Errorf("times must be >= 0, got %d", d.Times)
	}
	return nil
}

// NewEffect instantiates def at level. While a combat tick is active the first
// activation is one interval after currentTick; otherwise StartTick stays 0 and
// the effect does not take part in scheduling.
func NewEffect(def *Definition, level int, currentTick int, active bool) Effect {
	e := Effect{
		DefinitionID: def.ID,
		Name:         def.Name,
		Description:  def.Description,
		Level:        level,
		Interval:     def.Interval,
		Times:        def.Times,
	}
	if active {
		e.StartTick = currentTick + def.Interval
	}
	return e
}

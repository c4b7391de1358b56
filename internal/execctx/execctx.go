// Package execctx snapshots the environment a plan executes against: OS,
// architecture, working directory, environment variables, and the optional
// project file (blueprint.toml) carrying per-OS path mappings and variables.
// The snapshot hashes deterministically so two runs can be compared by
// context rather than by diffing environments.
package execctx

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
)

// ProjectFile is the conventional project config filename.
const ProjectFile = "blueprint.toml"

// PathMapping selects a path per operating system, falling back to Default.
// Values may reference environment variables with $VAR or ${VAR}.
type PathMapping struct {
	Default string `toml:"default"`
	Linux   string `toml:"linux,omitempty"`
	MacOS   string `toml:"macos,omitempty"`
	Windows string `toml:"windows,omitempty"`
}

// Project is the parsed blueprint.toml.
type Project struct {
	Paths     map[string]PathMapping `toml:"paths,omitempty"`
	Variables map[string]string      `toml:"variables,omitempty"`
	Hosts     map[string][]string    `toml:"hosts,omitempty"`

	// Policy names the policy file enforced for runs in this project,
	// relative to the project file unless absolute.
	Policy string `toml:"policy,omitempty"`
}

// ParseProject decodes a blueprint.toml document.
func ParseProject(data []byte) (*Project, error) {
	var p Project
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, errs.Scriptf("invalid project file: %v", err)
	}
	return &p, nil
}

// LoadProject reads and parses a project file from disk.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Scriptf("cannot read project file %s: %v", path, err)
	}
	return ParseProject(data)
}

// Context is an immutable snapshot of the execution environment.
type Context struct {
	OS         string
	Arch       string
	WorkingDir string
	Env        map[string]string
	Project    *Project
}

// FromEnv captures the current process environment.
func FromEnv() *Context {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return &Context{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		WorkingDir: wd,
		Env:        env,
		Project:    &Project{},
	}
}

// WithProject returns a copy using the given project config.
func (c *Context) WithProject(p *Project) *Context {
	cp := *c
	if p == nil {
		p = &Project{}
	}
	cp.Project = p
	return &cp
}

// WithEnv returns a copy with one environment variable overridden.
func (c *Context) WithEnv(name, val string) *Context {
	cp := *c
	env := make(map[string]string, len(c.Env)+1)
	for k, v := range c.Env {
		env[k] = v
	}
	env[name] = val
	cp.Env = env
	return &cp
}

// WithWorkingDir returns a copy rooted at dir.
func (c *Context) WithWorkingDir(dir string) *Context {
	cp := *c
	cp.WorkingDir = dir
	return &cp
}

// ResolveEnv looks up an environment variable from the snapshot.
func (c *Context) ResolveEnv(name string) (string, bool) {
	v, ok := c.Env[name]
	return v, ok
}

// ResolvePath resolves a project path mapping for the snapshot's OS, with
// environment expansion applied.
func (c *Context) ResolvePath(key string) (string, bool) {
	m, ok := c.Project.Paths[key]
	if !ok {
		return "", false
	}
	path := m.Default
	switch c.OS {
	case "linux":
		if m.Linux != "" {
			path = m.Linux
		}
	case "darwin":
		if m.MacOS != "" {
			path = m.MacOS
		}
	case "windows":
		if m.Windows != "" {
			path = m.Windows
		}
	}
	return c.Expand(path), true
}

// ResolveVar resolves a project variable with environment expansion applied.
func (c *Context) ResolveVar(key string) (string, bool) {
	v, ok := c.Project.Variables[key]
	if !ok {
		return "", false
	}
	return c.Expand(v), true
}

// Expand substitutes $VAR and ${VAR} references against the snapshot's
// environment. Unknown variables expand to the empty string.
func (c *Context) Expand(s string) string {
	return os.Expand(s, func(name string) string {
		return c.Env[name]
	})
}

// Hash returns a sha256 hex digest of the snapshot. Maps are folded in key
// order so the digest is stable across runs of the same context.
func (c *Context) Hash() string {
	h := sha256.New()
	h.Write([]byte(c.OS))
	h.Write([]byte(c.Arch))
	h.Write([]byte(c.WorkingDir))

	for _, k := range sortedKeys(c.Env) {
		h.Write([]byte(k))
		h.Write([]byte(c.Env[k]))
	}
	for _, k := range sortedKeys(c.Project.Paths) {
		h.Write([]byte(k))
		h.Write([]byte(c.Project.Paths[k].Default))
	}
	for _, k := range sortedKeys(c.Project.Variables) {
		h.Write([]byte(k))
		h.Write([]byte(c.Project.Variables[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

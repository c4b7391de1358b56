package execctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	ctx := FromEnv()

	assert.NotEmpty(t, ctx.OS)
	assert.NotEmpty(t, ctx.Arch)
	assert.NotEmpty(t, ctx.WorkingDir)
	assert.NotNil(t, ctx.Project)
}

func TestResolveEnv(t *testing.T) {
	ctx := FromEnv().WithEnv("MY_VAR", "my_value")

	v, ok := ctx.ResolveEnv("MY_VAR")
	require.True(t, ok)
	assert.Equal(t, "my_value", v)

	_, ok = ctx.ResolveEnv("NONEXISTENT_BLUEPRINT_VAR")
	assert.False(t, ok)
}

func TestResolvePath(t *testing.T) {
	project := &Project{
		Paths: map[string]PathMapping{
			"config": {
				Default: "/default/config",
				Linux:   "/etc/myapp",
				MacOS:   "$HOME/Library/Application Support/myapp",
			},
		},
	}

	ctx := FromEnv().WithProject(project).WithEnv("HOME", "/Users/test")
	ctx.OS = "darwin"

	resolved, ok := ctx.ResolvePath("config")
	require.True(t, ok)
	assert.Equal(t, "/Users/test/Library/Application Support/myapp", resolved)

	ctx.OS = "linux"
	resolved, ok = ctx.ResolvePath("config")
	require.True(t, ok)
	assert.Equal(t, "/etc/myapp", resolved)

	ctx.OS = "plan9"
	resolved, ok = ctx.ResolvePath("config")
	require.True(t, ok)
	assert.Equal(t, "/default/config", resolved)

	_, ok = ctx.ResolvePath("missing")
	assert.False(t, ok)
}

func TestResolveVar(t *testing.T) {
	project := &Project{
		Variables: map[string]string{
			"api_url": "https://api.example.com",
			"home":    "$HOME/data",
		},
	}

	ctx := FromEnv().WithProject(project).WithEnv("HOME", "/home/alice")

	v, ok := ctx.ResolveVar("api_url")
	require.True(t, ok)
	assert.Equal(t, "https://api.example.com", v)

	v, ok = ctx.ResolveVar("home")
	require.True(t, ok)
	assert.Equal(t, "/home/alice/data", v)

	_, ok = ctx.ResolveVar("missing")
	assert.False(t, ok)
}

func TestExpand(t *testing.T) {
	ctx := FromEnv().
		WithEnv("USER", "alice").
		WithEnv("HOME", "/home/alice")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "no variables here", "no variables here"},
		{"dollar", "$HOME/.config", "/home/alice/.config"},
		{"braces", "${HOME}/.config/${USER}/app", "/home/alice/.config/alice/app"},
		{"mixed", "$HOME/.config/$USER/app", "/home/alice/.config/alice/app"},
		{"unknown", "$NOPE_BLUEPRINT/x", "/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ctx.Expand(tt.in))
		})
	}
}

func TestHashChangesWithEnv(t *testing.T) {
	ctx1 := FromEnv().WithEnv("TEST", "value1")
	ctx2 := FromEnv().WithEnv("TEST", "value2")

	assert.NotEqual(t, ctx1.Hash(), ctx2.Hash())
	assert.Equal(t, ctx1.Hash(), ctx1.Hash())
	assert.Len(t, ctx1.Hash(), 64)
}

func TestParseProject(t *testing.T) {
	doc := `
[paths.config]
default = "/default/config"
linux = "/etc/myapp"
macos = "$HOME/Library/myapp"

[variables]
api_url = "https://api.example.com"
debug = "true"

[hosts]
web = ["web1.example.com", "web2.example.com"]
`
	project, err := ParseProject([]byte(doc))
	require.NoError(t, err)

	assert.Contains(t, project.Paths, "config")
	assert.Equal(t, "/etc/myapp", project.Paths["config"].Linux)
	assert.Equal(t, "https://api.example.com", project.Variables["api_url"])
	assert.Len(t, project.Hosts["web"], 2)
}

func TestParseProjectInvalid(t *testing.T) {
	_, err := ParseProject([]byte("[paths\nbroken"))
	assert.Error(t, err)
}

func TestParseProjectPolicy(t *testing.T) {
	doc := `
policy = "policy.toml"

[variables]
region = "us-east-1"
`
	project, err := ParseProject([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "policy.toml", project.Policy)
}

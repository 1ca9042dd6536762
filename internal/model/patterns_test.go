package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateCommandFrequency_EMA(t *testing.T) {
	m := New()
	const alpha = 0.1

	assert.False(t, m.UpdateCommandFrequency("ls -la /tmp", alpha))
	assert.InDelta(t, 0.1, m.CommandFrequency["ls -la <path>"], 1e-12)

	assert.True(t, m.UpdateCommandFrequency("ls -la /var", alpha), "same normalized key")
	assert.InDelta(t, 0.19, m.CommandFrequency["ls -la <path>"], 1e-12)

	assert.False(t, m.UpdateCommandFrequency("   ", alpha))
	assert.Len(t, m.CommandFrequency, 1)
}

func TestUpdateCommandFrequency_ConvergesWithoutOvershoot(t *testing.T) {
	m := New()
	const alpha = 0.1
	prev := 0.0
	for i := 0; i < 200; i++ {
		m.UpdateCommandFrequency("make", alpha)
		f := m.CommandFrequency["make"]
		require.Greater(t, f, prev, "monotonic on repeated hits")
		require.LessOrEqual(t, f-prev, alpha+1e-12, "a single hit moves at most alpha")
		require.Less(t, f, 1/(1-alpha))
		require.LessOrEqual(t, f, 1.0)
		prev = f
	}
	assert.InDelta(t, 1.0, prev, 1e-6)
}

func TestUpdateCommandFrequency_InflatedValueShrinksTowardOne(t *testing.T) {
	m := New()
	m.CommandFrequency["make"] = 3
	m.UpdateCommandFrequency("make", 0.1)
	assert.InDelta(t, 2.8, m.CommandFrequency["make"], 1e-12)
}

func TestLearnSequences(t *testing.T) {
	m := New()
	created, updated := m.LearnSequences([]string{"a", "b", "a", "b"}, 3)
	assert.Equal(t, 4, created) // ab, ba, aba, bab
	assert.Equal(t, 1, updated) // second ab

	require.Len(t, m.CommonSequences, 4)
	ab := m.CommonSequences[0]
	assert.Equal(t, []string{"a", "b"}, ab.Commands)
	assert.InDelta(t, 2, ab.Frequency, 1e-12)
	assert.InDelta(t, 0.55, ab.Confidence, 1e-12)

	ba := m.CommonSequences[1]
	assert.InDelta(t, 1, ba.Frequency, 1e-12)
	assert.InDelta(t, 0.5, ba.Confidence, 1e-12)
}

func TestLearnSequences_ConfidenceCappedAtOne(t *testing.T) {
	m := New()
	for i := 0; i < 100; i++ {
		m.LearnSequences([]string{"make", "make test"}, 2)
	}
	require.Len(t, m.CommonSequences, 1)
	assert.LessOrEqual(t, m.CommonSequences[0].Confidence, 1.0)
	assert.InDelta(t, 1.0, m.CommonSequences[0].Confidence, 1e-3)
	assert.InDelta(t, 100, m.CommonSequences[0].Frequency, 1e-9)
}

func TestLearnSequences_RawCommandsAndShortInput(t *testing.T) {
	m := New()
	m.LearnSequences([]string{"ls /tmp", "ls /var"}, 5)
	require.Len(t, m.CommonSequences, 1)
	assert.Equal(t, []string{"ls /tmp", "ls /var"}, m.CommonSequences[0].Commands)

	created, updated := m.LearnSequences([]string{"ls"}, 5)
	assert.Zero(t, created+updated)
	created, updated = m.LearnSequences([]string{"a", "b"}, 1)
	assert.Zero(t, created+updated)
}

func TestLearnTimePattern_TopTenAdmitsNewcomers(t *testing.T) {
	m := New()
	for i := 0; i < 12; i++ {
		m.LearnTimePattern(9, fmt.Sprintf("cmd%02d", i))
	}
	m.LearnTimePattern(9, "make")
	m.LearnTimePattern(9, "make")
	m.LearnTimePattern(9, "make")

	slot := m.TimePatterns[9]
	require.Len(t, slot, 10)
	assert.Equal(t, "make", slot[0].Command)
	assert.InDelta(t, 3, slot[0].Count, 1e-12)
	for i := 1; i < len(slot); i++ {
		assert.GreaterOrEqual(t, slot[i-1].Count, slot[i].Count)
	}

	m.LearnTimePattern(24, "ls")
	m.LearnTimePattern(-1, "ls")
	assert.Len(t, m.TimePatterns, 1)
}

func TestLearnDirectoryPattern(t *testing.T) {
	m := New()
	dir := "/home/bob/code/app/web"
	for i := 0; i < 15; i++ {
		m.LearnDirectoryPattern(dir, fmt.Sprintf("tool%02d", i))
	}
	m.LearnDirectoryPattern(dir, "npm run dev")

	counts := m.DirectoryCommands["app/web"]
	assert.Len(t, counts, 10)
	assert.Contains(t, counts, "npm run <arg>", "latest command survives trimming")

	m.LearnDirectoryPattern("", "ls")
	assert.Len(t, m.DirectoryCommands, 1)
}

func TestLearnProjectCommands(t *testing.T) {
	m := New()
	dir := "/home/bob/code/site/frontend"

	assert.True(t, m.LearnProjectCommands(dir, []string{"npm install", "ls"}))
	pc := m.ProjectContexts["code/site"]
	require.NotNil(t, pc)
	assert.Empty(t, pc.ProjectType, "one indicator is not enough")

	assert.False(t, m.LearnProjectCommands(dir, []string{"npm test", "yarn build", "alias dev='npm run dev'"}))
	assert.Equal(t, "nodejs", pc.ProjectType)
	assert.Equal(t, "npm run dev", pc.Aliases["dev"])
	assert.InDelta(t, 1, pc.Commands["npm install"], 1e-12)

	// First detection wins.
	m.LearnProjectCommands(dir, []string{"cargo build", "cargo test", "cargo run"})
	assert.Equal(t, "nodejs", pc.ProjectType)
}

func TestDetectProjectType(t *testing.T) {
	tests := []struct {
		commands []string
		want     string
	}{
		{[]string{"cargo build", "rustc main.rs"}, "rust"},
		{[]string{"pytest", "pip install -r requirements.txt"}, "python"},
		{[]string{"go build", "go test"}, "go"},
		{[]string{"mvn package", "gradle build"}, "java"},
		{[]string{"docker build .", "docker-compose up"}, "docker"},
		{[]string{"bundle install", "rake db:migrate"}, "ruby"},
		{[]string{"go build", "go test", "npm i", "npm t", "npm ci"}, "nodejs"},
		{[]string{"npm i", "npm t", "go test", "go vet"}, "nodejs"},
		{[]string{"make", "ls"}, ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, detectProjectType(tc.commands), "%v", tc.commands)
	}
}

func TestParseAlias(t *testing.T) {
	name, value, ok := parseAlias(`alias gs="git status"`)
	require.True(t, ok)
	assert.Equal(t, "gs", name)
	assert.Equal(t, "git status", value)

	for _, bad := range []string{"alias", "alias ll", "alias =x", "alias x=", "aliases x=y", "ls"} {
		_, _, ok := parseAlias(bad)
		assert.False(t, ok, bad)
	}
}

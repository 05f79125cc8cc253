package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libreshield/shieldd/internal/shield/domain"
)

func writeSeed(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDirectory_MergesAllFormats(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "base.json", `{
		"blockedDomains": ["Ads.COM", "casino.net"],
		"blockedKeywords": ["poker"],
		"allowedSites": ["school.edu"]
	}`)
	writeSeed(t, dir, "extra.yaml", "blockedDomains:\n  - tracker.io\nblockedKeywords:\n  - casino\n")
	writeSeed(t, dir, "more.toml", "blockedDomains = [\"ads.com\"]\n")

	out, err := LoadDirectory(dir, domain.DefaultSettings())
	require.NoError(t, err)

	assert.Equal(t, []string{"ads.com", "casino.net", "tracker.io"}, out.BlockedDomains,
		"hostnames canonicalized and de-duplicated across files")
	assert.Equal(t, []string{"poker", "casino"}, out.BlockedKeywords)
	assert.Equal(t, []string{"school.edu"}, out.AllowedSites)
	assert.True(t, out.IsBlockingEnabled, "base settings untouched")
}

func TestLoadDirectory_NeverOverwritesExistingEntries(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "seed.json", `{"blockedDomains": ["ads.com", "new.com"]}`)

	base := domain.DefaultSettings()
	base.BlockedDomains = []string{"ads.com", "user-added.com"}

	out, err := LoadDirectory(dir, base)
	require.NoError(t, err)
	assert.Equal(t, []string{"ads.com", "user-added.com", "new.com"}, out.BlockedDomains)
}

func TestLoadDirectory_SkipsUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "notes.txt", "not a seed file")
	writeSeed(t, dir, "lists.json", `{"blockedKeywords": ["poker"]}`)

	out, err := LoadDirectory(dir, domain.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, []string{"poker"}, out.BlockedKeywords)
}

func TestLoadDirectory_ParseFailureIsAnError(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "broken.json", `{"blockedDomains": [`)

	_, err := LoadDirectory(dir, domain.DefaultSettings())
	assert.Error(t, err)
}

func TestLoadDirectory_MissingDirIsAnError(t *testing.T) {
	_, err := LoadDirectory(filepath.Join(t.TempDir(), "absent"), domain.DefaultSettings())
	assert.Error(t, err)
}

func TestLoadDirectory_EmptyValuesDropped(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "seed.json", `{"blockedDomains": ["", "  ", "real.com"]}`)

	out, err := LoadDirectory(dir, domain.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, []string{"real.com"}, out.BlockedDomains)
}

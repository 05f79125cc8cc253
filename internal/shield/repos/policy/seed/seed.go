// Package seed loads initial policy lists from a directory of JSON, YAML, or
// TOML files. Seeds are only applied to an empty database on first run; they
// never overwrite lists the user has already edited.
package seed

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"

	"github.com/libreshield/shieldd/internal/shield/domain"
)

// list keys recognized inside seed files.
const (
	keyBlockedDomains  = "blockedDomains"
	keyBlockedKeywords = "blockedKeywords"
	keyAllowedSites    = "allowedSites"
)

// LoadDirectory walks dir, parses every supported file, and returns settings
// with the merged, de-duplicated lists applied on top of base. Unsupported
// extensions are skipped; a parse failure in any file is an error.
func LoadDirectory(dir string, base domain.Settings) (domain.Settings, error) {
	out := base.Clone()

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		parser := parserFor(path)
		if parser == nil {
			return nil // not a seed file
		}
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), parser); err != nil {
			return fmt.Errorf("error parsing seed file %s: %w", path, err)
		}
		out.BlockedDomains = mergeList(out.BlockedDomains, k.Strings(keyBlockedDomains), domain.CanonicalHost)
		out.BlockedKeywords = mergeList(out.BlockedKeywords, k.Strings(keyBlockedKeywords), strings.TrimSpace)
		out.AllowedSites = mergeList(out.AllowedSites, k.Strings(keyAllowedSites), domain.CanonicalHost)
		return nil
	})
	if err != nil {
		return domain.Settings{}, err
	}
	return out, nil
}

// parserFor selects a koanf parser by file extension, nil for unsupported.
func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return json.Parser()
	case ".yaml", ".yml":
		return yaml.Parser()
	case ".toml":
		return toml.Parser()
	default:
		return nil
	}
}

// mergeList appends normalized additions that are not already present.
func mergeList(existing, additions []string, normalize func(string) string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[normalize(e)] = struct{}{}
	}
	for _, a := range additions {
		n := normalize(a)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		existing = append(existing, n)
	}
	return existing
}

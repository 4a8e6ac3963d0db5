// Package ignore provides gitignore-based file filtering using go-git
package ignore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// FileName is the publish-specific ignore file read from the artifacts root.
const FileName = ".publishignore"

// Matcher provides gitignore-based file filtering
type Matcher struct {
	matcher gitignore.Matcher
}

// NewMatcher creates a matcher for files under root with layered ignore files:
// 1. .gitignore files and .git/info/exclude under root (foundation)
// 2. .publishignore at root (publish overrides)
func NewMatcher(root string) (*Matcher, error) {
	fs := osfs.New(root)

	var allPatterns []gitignore.Pattern

	// Always skipped
	allPatterns = append(allPatterns, gitignore.ParsePattern(".git/**", nil))

	// Layer 1: ReadPatterns walks .gitignore files and .git/info/exclude
	if gitPatterns, err := gitignore.ReadPatterns(fs, nil); err == nil {
		allPatterns = append(allPatterns, gitPatterns...)
	}

	// Layer 2: .publishignore
	publishPatterns, err := readIgnoreFile(filepath.Join(root, FileName))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for _, pattern := range publishPatterns {
		allPatterns = append(allPatterns, gitignore.ParsePattern(pattern, nil))
	}

	return &Matcher{
		matcher: gitignore.NewMatcher(allPatterns),
	}, nil
}

// readIgnoreFile reads patterns from a gitignore-syntax text file
func readIgnoreFile(path string) ([]string, error) {
	cleaned := filepath.Clean(path)
	if filepath.Base(cleaned) != FileName {
		return nil, fmt.Errorf("disallowed ignore file path: %s", cleaned)
	}
	content, err := os.ReadFile(cleaned) // #nosec G304 -- path cleaned and allowlisted
	if err != nil {
		return nil, err
	}

	var patterns []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}

	return patterns, nil
}

// IsIgnored checks if a file, given relative to the matcher root, is ignored
func (m *Matcher) IsIgnored(rel string) bool {
	parts := splitPath(filepath.ToSlash(rel))
	if len(parts) == 0 {
		return false
	}
	return m.matcher.Match(parts, false)
}

// IsIgnoredDir checks if a directory relative to the matcher root is ignored.
// As in git, nothing below an ignored directory can be re-included.
func (m *Matcher) IsIgnoredDir(rel string) bool {
	parts := splitPath(filepath.ToSlash(rel))
	if len(parts) == 0 {
		return false
	}
	return m.matcher.Match(parts, true)
}

// splitPath converts a slash-separated path into components for go-git matching
func splitPath(path string) []string {
	if path == "" || path == "." {
		return []string{}
	}

	path = strings.TrimPrefix(path, "/")
	parts := strings.Split(path, "/")

	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}

	return result
}

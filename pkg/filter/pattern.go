package filter

import (
	"regexp"
	"strings"
)

// Pattern is a compiled filename glob. Globs are compiled once per suffix
// group when the table is loaded, never per candidate file.
//
// Semantics: `*` matches any run of characters within a filename, `?`
// matches exactly one character. Matching is always scoped to one resolved
// directory level, so there is no recursive wildcard.
type Pattern struct {
	glob string
	re   *regexp.Regexp
}

// CompileGlob compiles a glob into a Pattern.
func CompileGlob(glob string) (*Pattern, error) {
	// collapse runs of consecutive stars, they are equivalent to one
	for strings.Contains(glob, "**") {
		glob = strings.ReplaceAll(glob, "**", "*")
	}

	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range glob {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, err
	}
	return &Pattern{glob: glob, re: re}, nil
}

// Match reports whether a filename matches the pattern.
func (p *Pattern) Match(name string) bool {
	return p.re.MatchString(name)
}

// String returns the original glob.
func (p *Pattern) String() string {
	return p.glob
}

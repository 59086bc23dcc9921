package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"regexp"
	"strings"
)

// Symbol extraction is regex-based on purpose. The output feeds prompt
// context and file ranking, so recall matters more than parser-grade
// precision. Python gets line-anchored patterns, the JavaScript family gets
// declaration patterns, everything else falls through to a generic matcher.
var (
	pyFuncRe   = regexp.MustCompile(`(?m)^\s*def\s+(\w+)`)
	pyClassRe  = regexp.MustCompile(`(?m)^\s*class\s+(\w+)`)
	pyImportRe = regexp.MustCompile(`(?m)^\s*(?:from\s+([\w.]+)\s+import|import\s+([\w.]+))`)
	pyBranchRe = regexp.MustCompile(`(?m)^\s*(?:if|elif|for|while|try|with)\b`)

	jsFuncRe   = regexp.MustCompile(`(?:function\s+(\w+)|(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s*)?\()`)
	jsClassRe  = regexp.MustCompile(`class\s+(\w+)`)
	jsImportRe = regexp.MustCompile(`import\s+.*?from\s+['"]([^'"]+)['"]|require\(['"]([^'"]+)['"]\)`)
	jsBranchRe = regexp.MustCompile(`\b(?:if|for|while|switch)\s*\(`)

	genFuncRe   = regexp.MustCompile(`\b(?:def|function|func|fn)\s+(\w+)`)
	genClassRe  = regexp.MustCompile(`\bclass\s+(\w+)`)
	genImportRe = regexp.MustCompile(`\b(?:import|include|require|use)\s+['"]?([^\s'"]+)`)
	genBranchRe = regexp.MustCompile(`\b(?:if|for|while|switch)\b`)
)

// parseFile reads one candidate and extracts its facts, including the
// SHA-256 digest used for change tracking.
func parseFile(c candidate) (*FileFacts, error) {
	data, err := os.ReadFile(c.abs)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	content := string(data)
	facts := &FileFacts{
		Path:     c.rel,
		Language: languageForPath(c.rel),
		Size:     c.size,
		Lines:    strings.Count(content, "\n") + 1,
		Digest:   hex.EncodeToString(sum[:]),
	}

	switch facts.Language {
	case "Python":
		parsePython(content, facts)
	case "JavaScript", "TypeScript", "React", "React TypeScript":
		parseJavaScript(content, facts)
	default:
		parseGeneric(content, facts)
	}
	return facts, nil
}

func parsePython(content string, f *FileFacts) {
	f.Functions = captureAll(pyFuncRe, content)
	f.Classes = captureAll(pyClassRe, content)
	f.Imports = dedupe(captureAll(pyImportRe, content))
	f.Complexity = len(pyBranchRe.FindAllString(content, -1))
}

func parseJavaScript(content string, f *FileFacts) {
	f.Functions = captureAll(jsFuncRe, content)
	f.Classes = captureAll(jsClassRe, content)
	f.Imports = dedupe(captureAll(jsImportRe, content))
	f.Complexity = len(jsBranchRe.FindAllString(content, -1))
}

func parseGeneric(content string, f *FileFacts) {
	f.Functions = captureAll(genFuncRe, content)
	f.Classes = captureAll(genClassRe, content)
	f.Imports = dedupe(captureAll(genImportRe, content))
	f.Complexity = len(genBranchRe.FindAllString(content, -1))
}

// captureAll returns the first non-empty capture group of every match.
func captureAll(re *regexp.Regexp, content string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(content, -1) {
		for _, g := range m[1:] {
			if g != "" {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// dedupe removes duplicates preserving first-seen order.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

package analyzer

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/docsmithhq/docsmith-agent/models"
)

// languageByExt is the set of source extensions the analyzer considers worth
// documenting. Anything else is ignored by the walker.
var languageByExt = map[string]string{
	".py":    "Python",
	".js":    "JavaScript",
	".ts":    "TypeScript",
	".jsx":   "React",
	".tsx":   "React TypeScript",
	".java":  "Java",
	".go":    "Go",
	".rs":    "Rust",
	".cpp":   "C++",
	".c":     "C",
	".cs":    "C#",
	".rb":    "Ruby",
	".php":   "PHP",
	".swift": "Swift",
	".kt":    "Kotlin",
}

// languageForPath returns the display language for a file path, or "" when
// the extension is not recognised.
func languageForPath(path string) string {
	return languageByExt[strings.ToLower(filepath.Ext(path))]
}

// frameworkNames maps an import keyword to the framework it indicates.
var frameworkNames = map[string]string{
	// Python
	"django":     "Django",
	"flask":      "Flask",
	"fastapi":    "FastAPI",
	"sqlalchemy": "SQLAlchemy",
	"pandas":     "Pandas",
	"numpy":      "NumPy",
	"tensorflow": "TensorFlow",
	"pytorch":    "PyTorch",
	"scikit":     "Scikit-learn",

	// JavaScript / TypeScript
	"react":   "React",
	"vue":     "Vue.js",
	"angular": "Angular",
	"next":    "Next.js",
	"express": "Express.js",
	"nestjs":  "NestJS",
	"svelte":  "Svelte",

	// Others
	"spring":  "Spring Framework",
	"laravel": "Laravel",
	"rails":   "Ruby on Rails",
}

// databaseNames maps an import keyword to the database it indicates.
var databaseNames = map[string]string{
	"mongodb":    "MongoDB",
	"postgresql": "PostgreSQL",
	"mysql":      "MySQL",
	"redis":      "Redis",
	"sqlite":     "SQLite",
	"cassandra":  "Cassandra",
	"dynamodb":   "DynamoDB",
}

// integrationNames maps an import keyword to a third-party integration.
var integrationNames = map[string]string{
	"stripe":        "Stripe Payment Processing",
	"paypal":        "PayPal Integration",
	"aws":           "Amazon Web Services (AWS)",
	"azure":         "Microsoft Azure",
	"gcp":           "Google Cloud Platform",
	"firebase":      "Firebase",
	"mongodb":       "MongoDB Database",
	"postgresql":    "PostgreSQL Database",
	"redis":         "Redis Cache",
	"elasticsearch": "Elasticsearch",
	"sendgrid":      "SendGrid Email",
	"twilio":        "Twilio Communications",
	"slack":         "Slack Integration",
	"github":        "GitHub Integration",
	"gitlab":        "GitLab Integration",
	"docker":        "Docker Containerization",
	"kubernetes":    "Kubernetes Orchestration",
	"oauth":         "OAuth Authentication",
	"jwt":           "JWT Authentication",
	"graphql":       "GraphQL API",
	"rest":          "REST API",
	"websocket":     "WebSocket Real-time",
}

// entryPointNames are file basenames that conventionally start execution.
var entryPointNames = map[string]struct{}{
	"main.go":          {},
	"main.py":          {},
	"app.py":           {},
	"manage.py":        {},
	"__main__.py":      {},
	"index.js":         {},
	"server.js":        {},
	"app.js":           {},
	"index.ts":         {},
	"server.ts":        {},
	"main.ts":          {},
	"main.rs":          {},
	"main.c":           {},
	"main.cpp":         {},
	"Main.java":        {},
	"Application.java": {},
	"Program.cs":       {},
}

// findEntryPoints returns the sorted paths of files that look like program
// entry points.
func findEntryPoints(files []*FileFacts) []string {
	var out []string
	for _, f := range files {
		if _, ok := entryPointNames[filepath.Base(f.Path)]; ok {
			out = append(out, f.Path)
		}
	}
	sort.Strings(out)
	return out
}

// matchKeywords returns the sorted display names whose keyword occurs in the
// joined lowercase import list. Substring matching is deliberate: "react-dom"
// still counts as React.
func matchKeywords(imports []string, table map[string]string) []string {
	joined := strings.ToLower(strings.Join(imports, " "))
	var out []string
	for kw, name := range table {
		if strings.Contains(joined, kw) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func identifyFrameworks(imports []string) []string {
	return matchKeywords(imports, frameworkNames)
}

func identifyDatabases(imports []string) []string {
	return matchKeywords(imports, databaseNames)
}

func identifyIntegrations(imports []string) []string {
	return matchKeywords(imports, integrationNames)
}

// categorizeStack folds per-file facts into the repository tech stack.
func categorizeStack(files []*FileFacts, imports []string) models.TechStack {
	langs := make(map[string]struct{})
	for _, f := range files {
		if f.Language != "" && f.Language != "Unknown" {
			langs[f.Language] = struct{}{}
		}
	}
	stack := models.TechStack{
		Languages:  make([]string, 0, len(langs)),
		Frameworks: identifyFrameworks(imports),
		Databases:  identifyDatabases(imports),
	}
	for l := range langs {
		stack.Languages = append(stack.Languages, l)
	}
	sort.Strings(stack.Languages)
	return stack
}

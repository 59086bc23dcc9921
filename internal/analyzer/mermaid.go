package analyzer

import (
	"fmt"
	"strings"

	"github.com/docsmithhq/docsmith-agent/models"
)

// Diagram renders a Mermaid architecture sketch from the detected stack.
// Layers appear only when the analysis found something for them: a frontend
// node for UI frameworks, a backend node for server frameworks (falling back
// to the top two languages), a database cylinder, and an integrations node
// for the first three external services.
func Diagram(stack models.TechStack, integrations []string) string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	var frontend, backend []string
	for _, fw := range stack.Frameworks {
		l := strings.ToLower(fw)
		switch {
		case containsAny(l, "react", "vue", "angular", "next", "svelte"):
			frontend = append(frontend, fw)
		case containsAny(l, "django", "flask", "fastapi", "express", "spring", "laravel"):
			backend = append(backend, fw)
		}
	}
	if len(backend) == 0 && len(stack.Languages) > 0 {
		backend = stack.Languages
		if len(backend) > 2 {
			backend = backend[:2]
		}
	}

	hasFrontend := len(frontend) > 0
	hasBackend := len(backend) > 0
	hasDatabase := len(stack.Databases) > 0
	hasIntegrations := len(integrations) > 0

	if hasFrontend {
		fmt.Fprintf(&b, "    Frontend[\"Frontend<br/>%s\"]\n", strings.Join(frontend, ", "))
	}
	if hasBackend {
		fmt.Fprintf(&b, "    Backend[\"Backend<br/>%s\"]\n", strings.Join(backend, ", "))
	}
	if hasDatabase {
		fmt.Fprintf(&b, "    Database[(\"Database<br/>%s\")]\n", strings.Join(stack.Databases, ", "))
	}
	if hasIntegrations {
		ints := integrations
		if len(ints) > 3 {
			ints = ints[:3]
		}
		fmt.Fprintf(&b, "    Integrations[\"Integrations<br/>%s\"]\n", strings.Join(ints, ", "))
	}

	if hasFrontend && hasBackend {
		b.WriteString("    Frontend --> Backend\n")
	}
	if hasBackend && hasDatabase {
		b.WriteString("    Backend --> Database\n")
	}
	if hasBackend && hasIntegrations {
		b.WriteString("    Backend --> Integrations\n")
	}

	b.WriteString("\n    classDef frontend fill:#61dafb,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef backend fill:#68a063,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef database fill:#f39c12,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef integration fill:#9b59b6,stroke:#333,stroke-width:2px\n")

	if hasFrontend {
		b.WriteString("    class Frontend frontend\n")
	}
	if hasBackend {
		b.WriteString("    class Backend backend\n")
	}
	if hasDatabase {
		b.WriteString("    class Database database\n")
	}
	if hasIntegrations {
		b.WriteString("    class Integrations integration\n")
	}

	return b.String()
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

package analyzer

import (
	"os"
	"path/filepath"
	"testing"
)

func parseFixture(t *testing.T, name, content string) *FileFacts {
	t.Helper()
	dir := t.TempDir()
	abs := filepath.Join(dir, name)
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	facts, err := parseFile(candidate{abs: abs, rel: name, size: int64(len(content))})
	if err != nil {
		t.Fatalf("parseFile: %v", err)
	}
	return facts
}

func TestParsePythonSymbols(t *testing.T) {
	facts := parseFixture(t, "svc.py", `import os
from app.core import settings

class Service:
    def run(self):
        if settings.DEBUG:
            return
        for item in []:
            print(item)

def helper():
    try:
        pass
    except ValueError:
        pass
`)

	if facts.Language != "Python" {
		t.Fatalf("Language = %s", facts.Language)
	}
	for _, fn := range []string{"run", "helper"} {
		if !contains(facts.Functions, fn) {
			t.Errorf("Functions missing %q: %v", fn, facts.Functions)
		}
	}
	if !contains(facts.Classes, "Service") {
		t.Errorf("Classes = %v", facts.Classes)
	}
	for _, imp := range []string{"os", "app.core"} {
		if !contains(facts.Imports, imp) {
			t.Errorf("Imports missing %q: %v", imp, facts.Imports)
		}
	}
	// if + for + try
	if facts.Complexity != 3 {
		t.Errorf("Complexity = %d, want 3", facts.Complexity)
	}
}

func TestParseJavaScriptSymbols(t *testing.T) {
	facts := parseFixture(t, "app.ts", `import { Router } from 'express'
const db = require('better-sqlite3')

function handle(req) {
  if (req.done) {
    return
  }
  for (let i = 0; i < 3; i++) {}
  switch (req.kind) {
  }
}

const render = async (tpl) => tpl

class Controller {}
`)

	if facts.Language != "TypeScript" {
		t.Fatalf("Language = %s", facts.Language)
	}
	for _, fn := range []string{"handle", "render"} {
		if !contains(facts.Functions, fn) {
			t.Errorf("Functions missing %q: %v", fn, facts.Functions)
		}
	}
	if !contains(facts.Classes, "Controller") {
		t.Errorf("Classes = %v", facts.Classes)
	}
	for _, imp := range []string{"express", "better-sqlite3"} {
		if !contains(facts.Imports, imp) {
			t.Errorf("Imports missing %q: %v", imp, facts.Imports)
		}
	}
	// if + for + switch
	if facts.Complexity != 3 {
		t.Errorf("Complexity = %d, want 3", facts.Complexity)
	}
}

func TestParseGenericSymbols(t *testing.T) {
	facts := parseFixture(t, "worker.go", `package worker

import "context"

func Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
`)

	if facts.Language != "Go" {
		t.Fatalf("Language = %s", facts.Language)
	}
	if !contains(facts.Functions, "Run") {
		t.Errorf("Functions = %v", facts.Functions)
	}
	if !contains(facts.Imports, "context") {
		t.Errorf("Imports = %v", facts.Imports)
	}
	if facts.Complexity == 0 {
		t.Error("Complexity = 0, want branch count")
	}
}

func TestParseDeduplicatesImports(t *testing.T) {
	facts := parseFixture(t, "dup.py", "import os\nimport os\nimport sys\n")
	if len(facts.Imports) != 2 {
		t.Fatalf("Imports = %v, want [os sys]", facts.Imports)
	}
}

func TestDigestAndLineCount(t *testing.T) {
	facts := parseFixture(t, "tiny.rb", "def hi\nend\n")
	if len(facts.Digest) != 64 {
		t.Errorf("Digest = %q, want 64 hex chars", facts.Digest)
	}
	if facts.Lines != 3 {
		t.Errorf("Lines = %d, want 3", facts.Lines)
	}
}

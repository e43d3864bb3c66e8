package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"vellum/pkg/compiler"
	"vellum/pkg/view"
)

type checkResult struct {
	File  string `json:"file"`
	Error string `json:"error,omitempty"`
}

// HandleCheck compiles every template under a directory and reports
// syntax errors without rendering anything.
// Usage: vellum check [--json] [dir]
func HandleCheck(args []string) {
	jsonOut := false
	dir := ViewRoot()
	for _, a := range args {
		if a == "--json" {
			jsonOut = true
			continue
		}
		dir = a
	}

	var results []checkResult
	failed := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, view.DefaultExt) {
			return err
		}
		source, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		res := checkResult{File: rel}
		if _, cerr := compiler.Compile(string(source), compiler.Options{Name: rel}); cerr != nil {
			res.Error = cerr.Error()
			failed++
		}
		results = append(results, res)
		return nil
	})
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	if jsonOut {
		out, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(out))
	} else {
		for _, res := range results {
			if res.Error == "" {
				fmt.Printf("✅ %s\n", res.File)
			} else {
				fmt.Printf("❌ %s: %s\n", res.File, res.Error)
			}
		}
		fmt.Printf("Checked %d template(s), %d with errors\n", len(results), failed)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"vellum/pkg/compiler"
)

// HandleDisasm compiles one template file and prints its instruction
// listing. Useful for seeing what a directive lowers to.
// Usage: vellum disasm <file>
func HandleDisasm(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: vellum disasm <file>")
		os.Exit(1)
	}
	source, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("❌ Failed to read template: %v\n", err)
		os.Exit(1)
	}
	p, err := compiler.Compile(string(source), compiler.Options{Name: filepath.Base(args[0])})
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	p.Disassemble(os.Stdout)
}

package cli

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"vellum/pkg/view"
)

// ViewRoot returns the template directory, VIEW_ROOT or ./views.
func ViewRoot() string {
	if root := os.Getenv("VIEW_ROOT"); root != "" {
		return root
	}
	return "views"
}

// HandleRender compiles one template and writes the rendered output to
// stdout. Usage: vellum render <template> [data.json]
func HandleRender(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: vellum render <template> [data.json]")
		os.Exit(1)
	}
	name := args[0]

	data := map[string]any{}
	if len(args) > 1 {
		raw, err := os.ReadFile(args[1])
		if err != nil {
			fmt.Printf("❌ Failed to read data file: %v\n", err)
			os.Exit(1)
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			fmt.Printf("❌ Invalid JSON in %s: %v\n", args[1], err)
			os.Exit(1)
		}
	}

	eng := view.New(ViewRoot())
	out, err := eng.Render(name, data)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Print(out)
}

// Command odmctl inspects schemas and collections from the command line.
//
// It validates JSON records against YAML schema definitions, creates the indexes a schema
// declares and runs find and count queries against the configured engine (memory, postgres
// or mongo).
//
// Usage examples:
//
//	odmctl validate --schema user.yaml --records users.json
//	odmctl indexes --schema user.yaml --engine postgres --dsn postgres://localhost/app
//	odmctl find --schema user.yaml --filter '{"age":{"$gte":18}}' --sort -age --limit 10
//	odmctl count --schema user.yaml --config odmctl.yaml
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand(openStore).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Command typegen parses tutorkit's Go structs and writes the TypeScript
// interfaces used by the browser frontend: settings, REST bodies and the
// streamed turn events. Run from the project root:
//
//	go run ./cmd/typegen -out web/src/types/generated.ts
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

func main() {
	outPath := flag.String("out", "web/src/types/generated.ts", "output TypeScript file path")
	root := flag.String("root", ".", "module root containing go.mod")
	flag.Parse()

	absRoot, err := filepath.Abs(*root)
	if err != nil {
		fatal("root: %v", err)
	}
	g, err := newGenerator(absRoot)
	if err != nil {
		fatal("%v", err)
	}
	if err := g.load(); err != nil {
		fatal("load: %v", err)
	}
	out, missing := g.generate(defaultTargets)
	for _, key := range missing {
		fmt.Fprintf(os.Stderr, "warning: struct %q not found, skipping\n", key)
	}

	absOut := *outPath
	if !filepath.IsAbs(absOut) {
		absOut = filepath.Join(absRoot, absOut)
	}
	if err := os.MkdirAll(filepath.Dir(absOut), 0o755); err != nil {
		fatal("mkdir: %v", err)
	}
	if err := os.WriteFile(absOut, out, 0o644); err != nil {
		fatal("write: %v", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", absOut, len(out))
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "typegen: "+format+"\n", args...)
	os.Exit(1)
}

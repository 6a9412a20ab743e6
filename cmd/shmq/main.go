// Package main provides shmq, a command line client for LRU caches living in
// shared memory segments.
package main

import (
	"os"
	"strings"

	"github.com/calvinalkan/shmcache/internal/cli"
)

func main() {
	environ := os.Environ()
	env := make(map[string]string, len(environ))

	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	exitCode := cli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args, env)

	os.Exit(exitCode)
}

//go:build wasip1

// Stand-in program for host tests: prints its arguments and the content of
// the file named by the last one.
// Built by go generate in the wasmhost package, or on demand by its tests.
package main

import (
	"fmt"
	"os"
	"strings"
)

func main() {
	fmt.Println("argv: " + strings.Join(os.Args, " "))
	if len(os.Args) < 2 {
		return
	}
	data, err := os.ReadFile(os.Args[len(os.Args)-1])
	if err != nil {
		fmt.Println("Problem with filename or unable to open file!", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

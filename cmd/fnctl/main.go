// fnctl executes a registered transformation function from the command
// line:
//
//	fnctl add 2 3
//	fnctl to_lowercase HELLO
//	fnctl -list
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"orderflow/internal/functions"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("fnctl", flag.ContinueOnError)
	flags.SetOutput(stderr)
	showList := flags.Bool("list", false, "print the registered functions and exit")
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Usage: fnctl [-list] <function_name> <var1> [var2]")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}

	registry := functions.NewRegistry()
	if err := functions.RegisterBuiltins(registry); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *showList {
		for _, name := range registry.Names() {
			fmt.Fprintln(stdout, name)
		}
		return 0
	}

	rest := flags.Args()
	if len(rest) < 2 {
		flags.Usage()
		return 2
	}
	name, var1 := rest[0], rest[1]
	var var2 string
	if len(rest) > 2 {
		var2 = rest[2]
	}

	result, err := registry.Call(name, var1, var2)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, result)
	return 0
}

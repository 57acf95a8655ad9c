// Command grail checks .pym scripts and prints their generated artifacts.
//
// Usage:
//
//	grail check [-artifacts dir] [-json] file.pym
//	grail stubs file.pym
//	grail gen file.pym
//	grail version
//
// Running scripts requires a Monty engine and tool implementations, which
// are wired programmatically; the CLI covers the static side: declaration
// checks, stub generation, and sandbox source generation.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"goa.design/grail"
	"goa.design/grail/script"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}
	switch args[0] {
	case "check":
		return check(args[1:])
	case "stubs":
		return show(args[1:], func(s *script.Script) string { return s.Stubs })
	case "gen":
		return show(args[1:], func(s *script.Script) string { return s.Generated })
	case "version":
		fmt.Println("grail", grail.Version)
		return 0
	case "-h", "--help", "help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "grail: unknown command %q\n", args[0])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  grail check [-artifacts dir] [-json] file.pym
  grail stubs file.pym
  grail gen file.pym
  grail version`)
}

func check(args []string) int {
	fs := newFlagSet("check")
	artifacts := fs.String("artifacts", "", "write stubs, generated code and results under this directory")
	asJSON := fs.Bool("json", false, "print the check result as JSON")
	path, ok := parseFile(fs, args)
	if !ok {
		return 2
	}

	var opts []script.LoadOption
	if *artifacts != "" {
		opts = append(opts, script.WithArtifactsDir(*artifacts))
	}
	cr, err := grail.CheckFile(context.Background(), path, nil, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "grail: %s\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cr); err != nil {
			fmt.Fprintf(os.Stderr, "grail: %s\n", err)
			return 1
		}
	} else {
		printResult(cr)
	}
	if !cr.Valid {
		return 1
	}
	return 0
}

func printResult(cr *script.CheckResult) {
	for _, msg := range cr.Errors {
		printMessage(msg)
	}
	for _, msg := range cr.Warnings {
		printMessage(msg)
	}
	status := "OK"
	if !cr.Valid {
		status = "FAILED"
	}
	fmt.Printf("%s: %s (%d errors, %d warnings)\n", cr.File, status, len(cr.Errors), len(cr.Warnings))
}

func printMessage(msg script.CheckMessage) {
	loc := ""
	if msg.Line > 0 {
		loc = fmt.Sprintf(":%d", msg.Line)
	}
	fmt.Printf("%s [%s] %s\n", loc, msg.Code, msg.Message)
	if msg.Suggestion != "" {
		fmt.Printf("  hint: %s\n", msg.Suggestion)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func parseFile(fs *flag.FlagSet, args []string) (string, bool) {
	if err := fs.Parse(args); err != nil {
		return "", false
	}
	if fs.NArg() != 1 {
		usage()
		return "", false
	}
	return fs.Arg(0), true
}

func show(args []string, pick func(*script.Script) string) int {
	fs := newFlagSet("stubs")
	path, ok := parseFile(fs, args)
	if !ok {
		return 2
	}
	s, err := script.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "grail: %s\n", err)
		return 1
	}
	fmt.Print(pick(s))
	return 0
}

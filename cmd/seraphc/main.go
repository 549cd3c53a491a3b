// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Command seraphc is the Seraphim language compiler: a one-shot driver over
// the root compiler package's pipeline, plus an interactive REPL when invoked with
// no source file, following the shape of probec, the teacher's own
// flag-driven compiler command.
//
// Usage:
//
//	seraphc [flags] <source.srf>
//
// Flags:
//
//	-o <output>      Output file (default: stdout)
//	-emit <stage>    Emit intermediate output: tokens, ast, ir, code (default: code)
//	-target <arch>   x86-64 or rv64imac (default: x86-64)
//	-config <path>   TOML config file (default: built-in defaults)
//	-optimize        Enable constant-fold/DCE passes (default: true)
//	-verify          Run the post-generation code verifier (default: true)
//	-version         Print version and exit
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"

	"github.com/seraphlang/seraph/compiler"
	"github.com/seraphlang/seraph/internal/config"
	"github.com/seraphlang/seraph/internal/diag"
	"github.com/seraphlang/seraph/internal/lexer"
	"github.com/seraphlang/seraph/internal/parser"
)

const version = "0.1.0"

func main() {
	var (
		output     = flag.String("o", "", "Output file (default: stdout)")
		emit       = flag.String("emit", "code", "Emit stage: tokens, ast, ir, code")
		target     = flag.String("target", "", "Target arch: x86-64 or rv64imac (default: config/built-in)")
		configPath = flag.String("config", "", "TOML config file (default: built-in defaults)")
		optimize   = flag.Bool("optimize", true, "Enable constant-fold/DCE passes")
		verify     = flag.Bool("verify", true, "Run the post-generation code verifier")
		ver        = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *ver {
		fmt.Printf("seraphc %s\n", version)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if *target != "" {
		cfg.Target.Arch = config.Arch(*target)
	}
	if !*optimize {
		cfg.Optimize.ConstantFold = false
		cfg.Optimize.DeadCode = false
	}
	_ = verify // the verifier always runs inside compiler.Compile; this flag exists for parity with probec's interface

	if flag.NArg() < 1 {
		runREPL(cfg)
		return
	}

	filename := flag.Arg(0)
	source, err := os.ReadFile(filename)
	if err != nil {
		fatal(err)
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fatal(err)
		}
		defer f.Close()
		out = f
	}

	switch *emit {
	case "tokens":
		emitTokens(out, filename, string(source))
	case "ast":
		emitAST(out, filename, string(source))
	case "ir":
		emitIR(out, filename, string(source), cfg)
	case "code":
		emitCode(out, filename, string(source), cfg)
	default:
		fatal(fmt.Errorf("unknown emit stage: %s", *emit))
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, errColor().Sprint("error: ")+err.Error())
	os.Exit(1)
}

// errColor and warnColor degrade to plain text on a non-terminal stdout
// (piped output, CI logs), matching the teacher's own habit of wrapping
// stdout through go-isatty/go-colorable rather than always coloring.
func errColor() *color.Color {
	c := color.New(color.FgRed, color.Bold)
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		c.DisableColor()
	}
	return c
}

func warnColor() *color.Color {
	c := color.New(color.FgYellow)
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		c.DisableColor()
	}
	return c
}

func emitTokens(w io.Writer, filename, source string) {
	l := lexer.New(filename, source)
	for _, tok := range l.Tokenize() {
		fmt.Fprintf(w, "%s\t%s\t%q\n", tok.Pos, tok.Type, tok.Literal)
	}
}

func emitAST(w io.Writer, filename, source string) {
	prog, errs := parser.Parse(filename, source)
	printParseErrors(errs)
	fmt.Fprintln(w, prog.String())
}

func emitIR(w io.Writer, filename, source string, cfg config.Config) {
	prog, errs := parser.Parse(filename, source)
	printParseErrors(errs)
	mod := compiler.Lower(prog)
	for _, fn := range mod.Functions {
		fmt.Fprintf(w, "fn %s {\n", fn.Name)
		for _, blk := range fn.Blocks {
			fmt.Fprintf(w, "%s:\n", blk.Label)
			for _, inst := range blk.Instructions {
				fmt.Fprintf(w, "  %s\n", inst.String())
			}
			if blk.Terminator != nil {
				fmt.Fprintf(w, "  %s\n", blk.Terminator.String())
			}
		}
		fmt.Fprintln(w, "}")
	}
}

func emitCode(w io.Writer, filename, source string, cfg config.Config) {
	res := compiler.Compile(filename, source, cfg)
	printDiagnostics(res.Diagnostics)
	if res.HasErrors() {
		os.Exit(1)
	}
	if _, err := w.Write(res.Code); err != nil {
		fatal(err)
	}
	summarize(res, cfg)
}

// summarize prints a one-row-per-function table to stderr so piping
// machine code to -o or stdout stays uncluttered; skipped entirely when
// stderr isn't a terminal.
func summarize(res *compiler.Result, cfg config.Config) {
	if !isatty.IsTerminal(os.Stderr.Fd()) || res.Module == nil {
		return
	}
	table := tablewriter.NewWriter(os.Stderr)
	table.SetHeader([]string{"function", "blocks", "effects", "arch"})
	for _, fn := range res.Module.Functions {
		table.Append([]string{fn.Name, fmt.Sprint(len(fn.Blocks)), fmt.Sprint(fn.Effects), string(cfg.Target.Arch)})
	}
	table.Render()
}

func printParseErrors(errs []error) {
	if len(errs) == 0 {
		return
	}
	c := errColor()
	for _, e := range errs {
		fmt.Fprintln(os.Stderr, c.Sprint("parse error: ")+e.Error())
	}
}

func printDiagnostics(diags []diag.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	c := errColor()
	for _, d := range diags {
		fmt.Fprintln(os.Stderr, c.Sprint(d.Kind.String()+": ")+d.Message)
	}
}

// runREPL starts an interactive prompt, reading one Seraphim declaration at
// a time and lowering+printing its IR, matching the teacher's console
// command's line-at-a-time evaluation loop.
func runREPL(cfg config.Config) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyPath = home + "/.seraphc_history"
		if f, err := os.Open(historyPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}

	stdout := colorable.NewColorableStdout()
	fmt.Fprintf(stdout, "seraphc %s -- interactive mode, Ctrl-D to exit\n", version)

	var buf strings.Builder
	for {
		prompt := "seraph> "
		if buf.Len() > 0 {
			prompt = "     .> "
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			break
		}
		line.AppendHistory(input)
		buf.WriteString(input)
		buf.WriteByte('\n')

		if !strings.HasSuffix(strings.TrimSpace(input), "}") && strings.Contains(buf.String(), "{") {
			continue // keep accumulating a multi-line fn/struct/enum body
		}

		src := buf.String()
		buf.Reset()
		if strings.TrimSpace(src) == "" {
			continue
		}
		replEval(stdout, src, cfg)
	}

	if historyPath != "" {
		if f, err := os.Create(historyPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}
}

func replEval(w io.Writer, src string, cfg config.Config) {
	res := compiler.Compile("<repl>", src, cfg)
	for _, d := range res.Diagnostics {
		fmt.Fprintln(os.Stderr, warnColor().Sprint(d.Kind.String()+": ")+d.Message)
	}
	if res.Module == nil {
		return
	}
	for _, fn := range res.Module.Functions {
		fmt.Fprintf(w, "fn %s: %d block(s), %d byte(s) emitted\n", fn.Name, len(fn.Blocks), len(res.Code))
	}
}

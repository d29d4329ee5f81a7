// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parexpr/parexpr"
	"github.com/parexpr/parexpr/errors"
	"github.com/parexpr/parexpr/logger"
)

// NewRootCommand builds the parexpr command tree.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "parexpr",
		Short: "Evaluate mathematical expressions over scalars and vectors.",
		Long: `parexpr compiles an expression once and evaluates it against
scalar and vector arguments, optionally in parallel over the elements
of a vector.

` + parexpr.VersionInfo() + "\n",
		SilenceUsage: true,
	}
	rc.PersistentFlags().String("log", "", "log file path, default stderr")
	rc.AddCommand(newEvalCommand(stdout, stderr))
	rc.AddCommand(newMapCommand(stdout, stderr))
	rc.AddCommand(newVersionCommand(stdout))
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// commandLogger builds the logger for one command invocation from the
// persistent --log flag: a reopenable file writer when a path is given,
// stderr otherwise.
func commandLogger(cmd *cobra.Command, stderr io.Writer) (logger.Logger, error) {
	path, err := cmd.Flags().GetString("log")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return logger.NewStandardLogger(stderr), nil
	}
	fw, err := logger.NewFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %v", err)
	}
	return logger.NewStandardLogger(fw), nil
}

func newVersionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(stdout, parexpr.VersionInfo())
			return nil
		},
	}
}

func newEvalCommand(stdout, stderr io.Writer) *cobra.Command {
	var vars []string
	var jsonErrors bool
	c := &cobra.Command{
		Use:   "eval EXPRESSION",
		Short: "Evaluate an expression once.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			named, names, err := parseVars(vars)
			if err != nil {
				return err
			}
			log, err := commandLogger(cmd, stderr)
			if err != nil {
				return err
			}
			e, err := parexpr.NewExpression(args[0], names, nil, parexpr.WithLogger(log))
			if err != nil {
				return reportErr(stderr, err, jsonErrors)
			}
			defer e.Close()
			v, err := e.Eval(named)
			if err != nil {
				return reportErr(stderr, err, jsonErrors)
			}
			fmt.Fprintln(stdout, strconv.FormatFloat(v, 'g', -1, 64))
			return nil
		},
	}
	c.Flags().StringArrayVar(&vars, "var", nil, "scalar binding name=value, repeatable")
	c.Flags().BoolVar(&jsonErrors, "json-errors", false, "report errors as JSON")
	return c
}

func newMapCommand(stdout, stderr io.Writer) *cobra.Command {
	var vars []string
	var iter, input string
	var joblets int
	c := &cobra.Command{
		Use:   "map EXPRESSION",
		Short: "Evaluate an expression per element of an input vector.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			named, names, err := parseVars(vars)
			if err != nil {
				return err
			}
			elems, err := parseVector(input)
			if err != nil {
				return err
			}
			if !contains(names, iter) {
				names = append(names, iter)
			}
			log, err := commandLogger(cmd, stderr)
			if err != nil {
				return err
			}
			e, err := parexpr.NewExpression(args[0], names, nil, parexpr.WithLogger(log))
			if err != nil {
				return reportErr(stderr, err, false)
			}
			defer e.Close()
			out, err := e.Map(elems, iter, joblets, named)
			if err != nil {
				return reportErr(stderr, err, false)
			}
			parts := make([]string, len(out))
			for i, v := range out {
				parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
			}
			fmt.Fprintln(stdout, strings.Join(parts, ","))
			return nil
		},
	}
	c.Flags().StringArrayVar(&vars, "var", nil, "scalar binding name=value, repeatable")
	c.Flags().StringVar(&iter, "iter", "x", "iterator variable name")
	c.Flags().StringVar(&input, "input", "", "comma-separated input vector")
	c.Flags().IntVar(&joblets, "joblets", 0, "number of parallel units, 0 for the ceiling")
	return c
}

// parseVars turns repeated name=value flags into a named-argument map
// plus the declared name list.
func parseVars(vars []string) (map[string]interface{}, []string, error) {
	named := map[string]interface{}{}
	var names []string
	for _, kv := range vars {
		eq := strings.IndexByte(kv, '=')
		if eq < 1 {
			return nil, nil, fmt.Errorf("malformed --var %q, want name=value", kv)
		}
		name := kv[:eq]
		v, err := strconv.ParseFloat(kv[eq+1:], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("malformed --var %q: %v", kv, err)
		}
		named[name] = v
		names = append(names, name)
	}
	return named, names, nil
}

func parseVector(s string) ([]float64, error) {
	if s == "" {
		return nil, fmt.Errorf("--input is required")
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("malformed --input element %q: %v", p, err)
		}
		out[i] = v
	}
	return out, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// reportErr prints the error, optionally as its JSON encoding with the
// error code, and returns it so the process exits nonzero.
func reportErr(stderr io.Writer, err error, asJSON bool) error {
	if asJSON {
		fmt.Fprintln(stderr, errors.MarshalJSON(err))
		return err
	}
	fmt.Fprintln(stderr, err)
	return err
}

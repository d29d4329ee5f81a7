// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import (
	"context"
	"regexp"
	"sync"

	"github.com/PaesslerAG/gval"

	"github.com/parexpr/parexpr/errors"
)

// compilerMu serializes every engine compilation in the process. The
// underlying parser is not assumed reentrant; evaluation is unaffected,
// so compiling one expression's replica never stalls another
// expression's running joblets, only other compilations.
var compilerMu sync.Mutex

// Engine is the narrow interface to the expression evaluation engine.
// The core never looks inside the compiled program; it only compiles
// (serialized under compilerMu) and evaluates against a bindings table.
type Engine interface {
	Compile(source string) (Program, error)
}

// Program is one compiled form of an expression, bound at evaluation
// time to a single instance's bindings table. A Program must tolerate
// sequential re-evaluation with mutated bindings; it is never shared
// between two goroutines at once.
type Program interface {
	Eval(binds map[string]interface{}) (float64, error)
}

// gvalEngine is the production engine, built on gval's full language.
type gvalEngine struct {
	lang gval.Language
}

// NewEngine returns the default gval-backed engine.
func NewEngine() Engine {
	return &gvalEngine{lang: gval.Full()}
}

func (e *gvalEngine) Compile(source string) (Program, error) {
	ev, err := e.lang.NewEvaluable(source)
	if err != nil {
		// gval diagnostics carry the parse position in the message.
		return nil, errors.Newf(errors.ErrCompile, "failed compiling expression %q: %v", source, err)
	}
	return &gvalProgram{ev: ev}, nil
}

type gvalProgram struct {
	ev gval.Evaluable
}

func (p *gvalProgram) Eval(binds map[string]interface{}) (float64, error) {
	v, err := p.ev.EvalFloat64(context.Background(), binds)
	if err != nil {
		return 0, errors.New(errors.ErrEval, err.Error())
	}
	return v, nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validName(name string) bool {
	return identRe.MatchString(name)
}

// CollectVariables scans an expression source and returns the variable
// names it references, in order of first appearance. Identifiers followed
// by '(' are function calls, not variables. Used when the caller omits
// the scalar name list; the resulting order is the positional-argument
// order, exactly as if the caller had passed it.
func CollectVariables(source string) []string {
	var names []string
	seen := map[string]bool{}
	runes := []rune(source)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c == '"' || c == '\'' {
			// skip string literals
			q := c
			for i++; i < len(runes) && runes[i] != q; i++ {
			}
			continue
		}
		if !isIdentStart(c) {
			continue
		}
		// a letter glued to a digit or a dot is an exponent suffix or a
		// selector member, not a fresh variable
		if i > 0 && (runes[i-1] == '.' || (runes[i-1] >= '0' && runes[i-1] <= '9')) {
			for i < len(runes) && isIdentPart(runes[i]) {
				i++
			}
			i--
			continue
		}
		j := i
		for j < len(runes) && isIdentPart(runes[j]) {
			j++
		}
		word := string(runes[i:j])
		i = j - 1
		// lookahead past spaces for a call or a selector
		k := j
		for k < len(runes) && (runes[k] == ' ' || runes[k] == '\t') {
			k++
		}
		if k < len(runes) && (runes[k] == '(' || runes[k] == '.') {
			continue
		}
		switch word {
		case "true", "false", "nil", "in", "and", "or", "not":
			continue
		}
		if !seen[word] {
			seen[word] = true
			names = append(names, word)
		}
	}
	return names
}

func isIdentStart(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c rune) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

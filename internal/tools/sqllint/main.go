// Command sqllint checks that every inline SQL constant starts with a
// "--sql <uuid>" audit marker and that no marker is used twice.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	sqlMarkerPattern  = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with)\b`)
	uuidMarkerPattern = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

type violation struct {
	file    string
	name    string
	line    int
	message string
}

type query struct {
	file   string
	name   string
	line   int
	marker string
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"."}
	}

	violations, err := lint(targets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
		os.Exit(1)
	}
	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "sqllint: SQL audit marker violations")
		for _, v := range violations {
			fmt.Fprintf(os.Stderr, "  %s:%d %s (%s)\n", v.file, v.line, v.message, v.name)
		}
		os.Exit(1)
	}
}

func lint(targets []string) ([]violation, error) {
	var queries []query
	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if filepath.Ext(target) == ".go" {
				qs, err := collectFile(target)
				if err != nil {
					return nil, err
				}
				queries = append(queries, qs...)
			}
			continue
		}
		walkErr := filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if path != target && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata") {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			qs, err := collectFile(path)
			if err != nil {
				return err
			}
			queries = append(queries, qs...)
			return nil
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}
	return check(queries), nil
}

func check(queries []query) []violation {
	var violations []violation
	seen := make(map[string]query, len(queries))
	for _, q := range queries {
		if !uuidMarkerPattern.MatchString(q.marker) {
			violations = append(violations, violation{file: q.file, line: q.line, name: q.name, message: "missing or invalid --sql <uuid> marker"})
			continue
		}
		if first, dup := seen[q.marker]; dup {
			violations = append(violations, violation{
				file:    q.file,
				line:    q.line,
				name:    q.name,
				message: fmt.Sprintf("marker already used by %s at %s:%d", first.name, first.file, first.line),
			})
			continue
		}
		seen[q.marker] = q
	}
	return violations
}

func collectFile(path string) ([]query, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, err
	}
	var queries []query
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for _, value := range vs.Values {
			bl, ok := value.(*ast.BasicLit)
			if !ok || bl.Kind != token.STRING {
				continue
			}
			raw, err := unquote(bl.Value)
			if err != nil || !sqlMarkerPattern.MatchString(raw) {
				continue
			}
			queries = append(queries, query{
				file:   path,
				line:   fset.Position(bl.Pos()).Line,
				name:   joinNames(vs.Names),
				marker: firstLine(raw),
			})
		}
		return true
	})
	return queries, nil
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if len(v) == 0 {
		return v, nil
	}
	if v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}

func joinNames(idents []*ast.Ident) string {
	parts := make([]string, 0, len(idents))
	for _, ident := range idents {
		if ident == nil {
			continue
		}
		parts = append(parts, ident.Name)
	}
	return strings.Join(parts, ",")
}

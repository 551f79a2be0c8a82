package main

import (
	"go/ast"
	"go/parser"
	"go/token"
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

type markerSite struct {
	file string
	name string
}

type linter struct {
	seen       map[string]markerSite
	violations []violation
}

func newLinter() *linter {
	return &linter{seen: map[string]markerSite{}}
}

func (l *linter) lintFile(path string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return err
	}
	l.lintAST(path, fset, file)
	return nil
}

func (l *linter) lintAST(path string, fset *token.FileSet, file *ast.File) {
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for _, value := range vs.Values {
			raw, ok := foldString(value)
			if !ok || !sqlMarkerPattern.MatchString(raw) {
				continue
			}
			name := joinNames(vs.Names)
			pos := fset.Position(value.Pos())
			marker := firstLine(raw)
			if !uuidMarkerPattern.MatchString(marker) {
				l.violations = append(l.violations, violation{
					file:    path,
					line:    pos.Line,
					name:    name,
					message: "missing or invalid --sql <uuid> marker",
				})
				continue
			}
			if prev, dup := l.seen[marker]; dup {
				l.violations = append(l.violations, violation{
					file:    path,
					line:    pos.Line,
					name:    name,
					message: "marker already used by " + prev.name + " in " + prev.file,
				})
				continue
			}
			l.seen[marker] = markerSite{file: path, name: name}
		}
		return true
	})
}

// foldString evaluates a string literal or a concatenation of literals and
// identifiers. Identifiers stand in for shared column lists and only their
// name is kept.
func foldString(expr ast.Expr) (string, bool) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		if e.Kind != token.STRING {
			return "", false
		}
		s, err := unquote(e.Value)
		return s, err == nil
	case *ast.ParenExpr:
		return foldString(e.X)
	case *ast.Ident:
		return e.Name, true
	case *ast.BinaryExpr:
		if e.Op != token.ADD {
			return "", false
		}
		left, ok := foldString(e.X)
		if !ok {
			return "", false
		}
		right, ok := foldString(e.Y)
		if !ok {
			return "", false
		}
		return left + right, true
	}
	return "", false
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

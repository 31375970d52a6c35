package main

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

const maxCommandConstructorLines = 80

// localCommands run without an API server. Every other command with a RunE
// talks to the server and must go through withClient, which starts a local
// server when needed.
var localCommands = map[string]bool{
	"newSrvCmd":           true,
	"newConfigGetCmd":     true,
	"newConfigSetCmd":     true,
	"newMigrateCmd":       true,
	"newTokenGenerateCmd": true,
	"newTokenHashCmd":     true,
}

type commandSource struct {
	name string
	file *ast.File
}

func TestCommandConstructorsStaySmall(t *testing.T) {
	fset := token.NewFileSet()
	for _, src := range parseCommandSources(t, fset) {
		for _, fn := range commandConstructors(src.file) {
			lines := fset.Position(fn.Body.Rbrace).Line - fset.Position(fn.Body.Lbrace).Line + 1
			if lines > maxCommandConstructorLines {
				t.Fatalf("%s in %s is %d lines, move the body into a helper (max %d)", fn.Name.Name, src.name, lines, maxCommandConstructorLines)
			}
		}
	}
}

func TestServerCommandsUseWithClient(t *testing.T) {
	fset := token.NewFileSet()
	seen := map[string]bool{}
	for _, src := range parseCommandSources(t, fset) {
		for _, fn := range commandConstructors(src.file) {
			runE := runEBody(fn)
			if runE == nil {
				continue
			}
			name := fn.Name.Name
			seen[name] = true
			calls := callsIdent(runE, "withClient")
			switch {
			case localCommands[name] && calls:
				t.Errorf("%s in %s is local but calls withClient", name, src.name)
			case !localCommands[name] && !calls:
				t.Errorf("%s in %s talks to the API without withClient", name, src.name)
			}
		}
	}
	for name := range localCommands {
		if !seen[name] {
			t.Errorf("local command %s has no RunE constructor; update localCommands", name)
		}
	}
}

func TestAPIClientsAreBuiltInClientGo(t *testing.T) {
	fset := token.NewFileSet()
	for _, src := range parseCommandSources(t, fset) {
		if src.name == "client.go" {
			continue
		}
		ast.Inspect(src.file, func(n ast.Node) bool {
			sel, ok := n.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			if pkg, ok := sel.X.(*ast.Ident); ok && pkg.Name == "api" && sel.Sel.Name == "NewClient" {
				t.Errorf("%s: api.NewClient outside client.go", fset.Position(sel.Pos()))
			}
			return true
		})
	}
}

func parseCommandSources(t *testing.T, fset *token.FileSet) []commandSource {
	t.Helper()
	_, self, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	dir := filepath.Dir(self)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}

	var sources []commandSource
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, 0)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		sources = append(sources, commandSource{name: name, file: file})
	}
	return sources
}

func commandConstructors(file *ast.File) []*ast.FuncDecl {
	var fns []*ast.FuncDecl
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil || fn.Recv != nil {
			continue
		}
		if strings.HasPrefix(fn.Name.Name, "new") && strings.HasSuffix(fn.Name.Name, "Cmd") {
			fns = append(fns, fn)
		}
	}
	return fns
}

// runEBody returns the func literal assigned to RunE in fn, if any.
func runEBody(fn *ast.FuncDecl) *ast.FuncLit {
	var body *ast.FuncLit
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		kv, ok := n.(*ast.KeyValueExpr)
		if !ok {
			return body == nil
		}
		if key, ok := kv.Key.(*ast.Ident); ok && key.Name == "RunE" {
			body, _ = kv.Value.(*ast.FuncLit)
		}
		return body == nil
	})
	return body
}

func callsIdent(node ast.Node, name string) bool {
	found := false
	ast.Inspect(node, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return !found
		}
		if ident, ok := call.Fun.(*ast.Ident); ok && ident.Name == name {
			found = true
		}
		return !found
	})
	return found
}

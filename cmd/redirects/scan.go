package main

import (
	"bufio"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const redirectDirective = "//go:redirect-from"

// redirect maps a runtime symbol to the kernel function replacing it.
type redirect struct {
	src string
	dst string

	srcVMA uint64
	dstVMA uint64
}

// scanModule collects the redirections declared by the non-test sources
// under root/kernel.
func scanModule(root string) ([]*redirect, error) {
	modPath, err := modulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		return nil, err
	}

	kernelDir := filepath.Join(root, "kernel")
	if st, err := os.Stat(kernelDir); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%s: kernel sources not found", root)
	}

	var redirects []*redirect
	err = filepath.WalkDir(kernelDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return err
		}

		found, err := findRedirects(path, modPath+"/"+filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		redirects = append(redirects, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("scanned kernel sources", zap.String("module", modPath), zap.Int("redirects", len(redirects)))
	return redirects, nil
}

// findRedirects parses a single Go file and returns the redirections
// declared in the doc comments of its functions. pkgPath is the import path
// of the file's package.
func findRedirects(file, pkgPath string) ([]*redirect, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, file, nil, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	var redirects []*redirect
	for _, decl := range f.Decls {
		fnDecl, ok := decl.(*ast.FuncDecl)
		if !ok || fnDecl.Doc == nil || fnDecl.Recv != nil {
			continue
		}

		for _, comment := range fnDecl.Doc.List {
			if !strings.HasPrefix(comment.Text, redirectDirective) {
				continue
			}

			dst := pkgPath + "." + fnDecl.Name.Name
			fields := strings.Fields(comment.Text)
			if len(fields) != 2 || fields[0] != redirectDirective {
				return nil, fmt.Errorf("%s: malformed go:redirect-from syntax for %q", fset.Position(comment.Pos()), dst)
			}

			redirects = append(redirects, &redirect{src: fields[1], dst: dst})
		}
	}

	return redirects, nil
}

// modulePath returns the module path declared in a go.mod file.
func modulePath(goMod string) (string, error) {
	f, err := os.Open(goMod)
	if err != nil {
		return "", fmt.Errorf("this tool must be run from the module root: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 && fields[0] == "module" {
			return strings.Trim(fields[1], `"`), nil
		}
	}
	if err = scanner.Err(); err != nil {
		return "", err
	}

	return "", fmt.Errorf("%s: missing module directive", goMod)
}

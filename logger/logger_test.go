package logger

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExportedFunctionsDocumented(t *testing.T) {
	for _, fileName := range []string{"logger.go", "ctx.go"} {
		t.Run(fileName, func(t *testing.T) {
			file, err := parser.ParseFile(token.NewFileSet(), fileName, nil, parser.ParseComments)
			require.NoError(t, err)
			for _, decl := range file.Decls {
				fn, ok := decl.(*ast.FuncDecl)
				if !ok || !fn.Name.IsExported() {
					continue
				}
				require.NotNil(t, fn.Doc, fn.Name.Name)
				require.Contains(t, fn.Doc.Text(), fn.Name.Name+" ", fn.Name.Name)
			}
		})
	}
}

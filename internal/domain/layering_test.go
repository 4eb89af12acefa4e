package domain_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modulePrefix = "github.com/davidleathers/auction-ledger/internal/"

// layers maps a directory under internal/ to the internal packages its
// non-test files must not import
var layers = map[string][]string{
	"domain":         {"service", "infrastructure", "api", "metrics"},
	"service":        {"infrastructure", "api", "metrics"},
	"infrastructure": {"api"},
	"metrics":        {"api", "infrastructure"},
}

func TestLayering(t *testing.T) {
	for layer, forbidden := range layers {
		t.Run(layer, func(t *testing.T) {
			root := filepath.Join("..", layer)
			if layer == "domain" {
				root = "."
			}
			err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
					return nil
				}
				for _, imp := range fileImports(t, path) {
					rel, ok := strings.CutPrefix(imp, modulePrefix)
					if !ok {
						continue
					}
					for _, f := range forbidden {
						assert.False(t, rel == f || strings.HasPrefix(rel, f+"/"),
							"%s imports %s", path, imp)
					}
				}
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func fileImports(t *testing.T, path string) []string {
	t.Helper()
	f, err := parser.ParseFile(token.NewFileSet(), path, nil, parser.ImportsOnly)
	require.NoError(t, err)

	imports := make([]string, 0, len(f.Imports))
	for _, is := range f.Imports {
		p, err := strconv.Unquote(is.Path.Value)
		require.NoError(t, err)
		imports = append(imports, p)
	}
	return imports
}

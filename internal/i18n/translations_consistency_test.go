package i18n

import (
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/iamwavecut/strikeguard/resources"
)

func TestEveryUsedKeyIsDefinedAndEveryDefinedKeyIsUsed(t *testing.T) {
	t.Parallel()

	used := usedKeys(t)
	defined := sortedKeys(loadDict(t))
	require.NotEmpty(t, used)
	assert.ElementsMatch(t, defined, used)
}

func TestTranslationsAreCompleteForSupportedLocales(t *testing.T) {
	t.Parallel()

	var locales []string
	for code := range languageNames {
		if code != "en" {
			locales = append(locales, strings.ToUpper(code))
		}
	}
	sort.Strings(locales)

	for key, translations := range loadDict(t) {
		for _, locale := range locales {
			value := strings.TrimSpace(translations[locale])
			assert.NotEmptyf(t, value, "key %q has no %s translation", key, locale)
			assert.Equalf(t, strings.Count(key, "%"), strings.Count(value, "%"), "key %q: %s placeholders differ", key, locale)
		}
	}
}

func TestSkipDirNeverSkipsRoot(t *testing.T) {
	t.Parallel()

	root := filepath.Join("work", "_ws")
	assert.False(t, skipDir(root, root))
	assert.False(t, skipDir(".git", ".git"))
	assert.True(t, skipDir(root, filepath.Join(root, "_examples")))
	assert.True(t, skipDir(root, filepath.Join(root, ".git")))
	assert.False(t, skipDir(root, filepath.Join(root, "internal")))
}

func TestGetAndPick(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Strict mode", Get("Strict mode", "en"))
	assert.Equal(t, "Строгий режим", Get("Strict mode", "ru"))
	assert.Equal(t, "Суворий режим", Get("Strict mode", " uk "))
	assert.Equal(t, "no such key", Get("no such key", "uk"))

	for code, want := range map[string]string{
		"ru":    "ru",
		"uk-UA": "uk",
		" EN ":  "en",
		"de":    "en",
		"":      "en",
	} {
		assert.Equalf(t, want, Pick(code, "en"), "Pick(%q)", code)
	}
	assert.Equal(t, "Ukrainian", GetLanguageName("UK"))
	assert.Equal(t, "xx", GetLanguageName("xx"))
}

func loadDict(t *testing.T) map[string]map[string]string {
	t.Helper()
	content, err := resources.FS.ReadFile(translationsFile)
	require.NoError(t, err)
	dict := map[string]map[string]string{}
	require.NoError(t, yaml.Unmarshal(content, &dict))
	return dict
}

// usedKeys collects string literals passed as the first argument of i18n.Get
// anywhere in the module sources.
func usedKeys(t *testing.T) []string {
	t.Helper()
	_, self, _, ok := runtime.Caller(0)
	require.True(t, ok)
	root := filepath.Clean(filepath.Join(filepath.Dir(self), "..", ".."))

	keys := map[string]struct{}{}
	fset := token.NewFileSet()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDir(root, path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		file, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
		if err != nil {
			return err
		}
		ast.Inspect(file, func(n ast.Node) bool {
			if key, ok := i18nKey(n); ok {
				keys[key] = struct{}{}
			}
			return true
		})
		return nil
	})
	require.NoError(t, err)

	out := make([]string, 0, len(keys))
	for key := range keys {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// skipDir hides vendored reference trees and dot directories below root.
// The root itself is always walked whatever its name.
func skipDir(root, path string) bool {
	if filepath.Clean(path) == filepath.Clean(root) {
		return false
	}
	name := filepath.Base(path)
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")
}

func i18nKey(n ast.Node) (string, bool) {
	call, ok := n.(*ast.CallExpr)
	if !ok || len(call.Args) == 0 {
		return "", false
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Get" {
		return "", false
	}
	if pkg, ok := sel.X.(*ast.Ident); !ok || pkg.Name != "i18n" {
		return "", false
	}
	lit, ok := call.Args[0].(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	key, err := strconv.Unquote(lit.Value)
	return key, err == nil && key != ""
}

func sortedKeys(dict map[string]map[string]string) []string {
	keys := make([]string, 0, len(dict))
	for key := range dict {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// target is one struct to emit, keyed by "rel/dir:Name".
type target struct {
	key    string
	tsName string
	// required lists JSON fields that are always present.
	required []string
}

var defaultTargets = []target{
	// Settings
	{key: "factories:SettingsConfig", tsName: "Settings"},
	{key: "factories:SessionAPIConfig", tsName: "SessionApiConfig", required: []string{"url"}},
	{key: "factories:ServerConfig", tsName: "ServerConfig"},
	{key: "factories:LatencyConfig", tsName: "LatencyConfig"},
	{key: "factories:SessionConfig", tsName: "SessionConfig"},
	{key: "handlers/turn:Config", tsName: "TurnConfig"},
	{key: "factories:LLMFactoryConfig", tsName: "LlmServiceConfig"},
	{key: "services/openai/llm:Config", tsName: "OpenAiLlmConfig"},
	{key: "factories:STTFactoryConfig", tsName: "SttServiceConfig"},
	{key: "services/openai/stt:Config", tsName: "WhisperConfig"},
	{key: "factories:TranslatorFactoryConfig", tsName: "TranslatorServiceConfig"},
	{key: "services/google/translate:Config", tsName: "GoogleTranslateConfig"},
	{key: "services/openai/translate:Config", tsName: "OpenAiTranslateConfig"},
	{key: "factories:TTSFactoryConfig", tsName: "TtsServiceConfig"},
	{key: "services/elevenlabs/tts:ElevenLabsTTSConfig", tsName: "ElevenLabsTtsConfig"},
	{key: "services/polly/tts:Config", tsName: "PollyConfig"},
	{key: "handlers/memory:Scenario", tsName: "Scenario", required: []string{"name", "prompt"}},

	// REST and streaming contract
	{key: "events/tutor:Wire", tsName: "TutorEvent", required: []string{"type"}},
	{key: "transports/http:ChatRequest", tsName: "ChatRequest", required: []string{"message"}},
	{key: "transports/http:ChatResponse", tsName: "ChatResponse"},
	{key: "transports/http:ScenarioSummary", tsName: "ScenarioSummary", required: []string{"id", "name"}},
	{key: "transports/http:SelectScenarioRequest", tsName: "SelectScenarioRequest", required: []string{"id"}},
	{key: "transports/http:TranslateWordsRequest", tsName: "TranslateWordsRequest", required: []string{"sentence"}},
	{key: "transports/websocket:ClientMessage", tsName: "SocketMessage", required: []string{"message"}},
	{key: "handlers/memory:Exchange", tsName: "Exchange", required: []string{"user", "assistant"}},
	{key: "handlers/latency:Record", tsName: "LatencyRecord", required: []string{"timestamp", "total_ms"}},
}

// eventPackage holds the Type* constants naming the streamed events.
const eventPackage = "events/tutor"

// builtinTypes maps Go types, including well-known library types, to their
// JSON shape in TypeScript.
var builtinTypes = map[string]string{
	"string":          "string",
	"bool":            "boolean",
	"int":             "number",
	"int8":            "number",
	"int16":           "number",
	"int32":           "number",
	"int64":           "number",
	"uint":            "number",
	"uint8":           "number",
	"uint16":          "number",
	"uint32":          "number",
	"uint64":          "number",
	"float32":         "number",
	"float64":         "number",
	"any":             "unknown",
	"interface{}":     "unknown",
	"[]byte":          "string", // base64
	"time.Time":       "string",
	"time.Duration":   "number", // nanoseconds
	"json.RawMessage": "unknown",
}

type field struct {
	jsonName string
	goType   string // named module types are written as "@rel/dir:Name"
	optional bool
}

type structInfo struct {
	key    string
	fields []field
}

type generator struct {
	root    string
	module  string
	structs map[string]*structInfo
	// aliases maps a named non-struct type to its underlying type.
	aliases map[string]string
	// enums maps a named string type to its declared values.
	enums map[string][]string
	// consts maps a package dir to its untyped string constants.
	consts map[string]map[string]string
}

func newGenerator(root string) (*generator, error) {
	module, err := modulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		return nil, err
	}
	return &generator{
		root:    root,
		module:  module,
		structs: map[string]*structInfo{},
		aliases: map[string]string{},
		enums:   map[string][]string{},
		consts:  map[string]map[string]string{},
	}, nil
}

func modulePath(goMod string) (string, error) {
	f, err := os.Open(goMod)
	if err != nil {
		return "", err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "module ") {
			return strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "module")), `"`), nil
		}
	}
	return "", errors.New("go.mod has no module line")
}

// load parses every package under the root. Directories starting with "_"
// or "." are skipped, like the go tool does.
func (g *generator) load() error {
	return filepath.WalkDir(g.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != g.root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") ||
			name == "vendor" || name == "node_modules" || name == "testdata") {
			return filepath.SkipDir
		}
		rel, _ := filepath.Rel(g.root, path)
		rel = filepath.ToSlash(rel)
		if err := g.parseDir(path, rel); err != nil {
			fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", rel, err)
		}
		return nil
	})
}

func (g *generator) parseDir(dir, rel string) error {
	fset := token.NewFileSet()
	pkgs, err := parser.ParseDir(fset, dir, func(fi os.FileInfo) bool {
		return !strings.HasSuffix(fi.Name(), "_test.go")
	}, 0)
	if err != nil {
		return err
	}
	for _, pkg := range pkgs {
		for _, file := range pkg.Files {
			g.parseFile(file, rel)
		}
	}
	return nil
}

func (g *generator) parseFile(file *ast.File, rel string) {
	imports := map[string]string{}
	for _, imp := range file.Imports {
		path, _ := strconv.Unquote(imp.Path.Value)
		name := path[strings.LastIndex(path, "/")+1:]
		if imp.Name != nil {
			name = imp.Name.Name
		}
		imports[name] = path
	}
	q := qualifier{gen: g, rel: rel, imports: imports}

	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok {
			continue
		}
		switch gd.Tok {
		case token.TYPE:
			for _, spec := range gd.Specs {
				ts := spec.(*ast.TypeSpec)
				key := rel + ":" + ts.Name.Name
				if st, ok := ts.Type.(*ast.StructType); ok {
					g.structs[key] = q.parseStruct(key, st)
					continue
				}
				g.aliases[key] = q.typeString(ts.Type)
			}
		case token.CONST:
			for _, spec := range gd.Specs {
				vs := spec.(*ast.ValueSpec)
				for i, val := range vs.Values {
					lit, ok := val.(*ast.BasicLit)
					if !ok || lit.Kind != token.STRING || i >= len(vs.Names) {
						continue
					}
					s, _ := strconv.Unquote(lit.Value)
					if vs.Type != nil {
						typ := strings.TrimPrefix(q.typeString(vs.Type), "@")
						g.enums[typ] = append(g.enums[typ], s)
						continue
					}
					if g.consts[rel] == nil {
						g.consts[rel] = map[string]string{}
					}
					g.consts[rel][vs.Names[i].Name] = s
				}
			}
		}
	}
}

// qualifier renders type expressions of one file, resolving package
// selectors to module-relative keys.
type qualifier struct {
	gen     *generator
	rel     string
	imports map[string]string
}

func (q qualifier) parseStruct(key string, st *ast.StructType) *structInfo {
	si := &structInfo{key: key}
	for _, f := range st.Fields.List {
		if f.Tag == nil {
			continue
		}
		tag, _ := strconv.Unquote(f.Tag.Value)
		parts := strings.Split(reflect.StructTag(tag).Get("json"), ",")
		name := parts[0]
		if name == "" || name == "-" || secretField(name) {
			continue
		}
		_, isPointer := f.Type.(*ast.StarExpr)
		optional := isPointer
		for _, p := range parts[1:] {
			if p == "omitempty" {
				optional = true
			}
		}
		si.fields = append(si.fields, field{
			jsonName: name,
			goType:   q.typeString(f.Type),
			optional: optional,
		})
	}
	return si
}

// secretField reports fields that are injected from the environment and
// never travel to the browser.
func secretField(jsonName string) bool {
	return jsonName == "api_key" || jsonName == "api_secret"
}

func (q qualifier) typeString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		if _, ok := builtinTypes[t.Name]; ok || t.Name == "byte" {
			return t.Name
		}
		return "@" + q.rel + ":" + t.Name
	case *ast.StarExpr:
		return "*" + q.typeString(t.X)
	case *ast.ArrayType:
		return "[]" + q.typeString(t.Elt)
	case *ast.MapType:
		return "map[" + q.typeString(t.Key) + "]" + q.typeString(t.Value)
	case *ast.SelectorExpr:
		pkg, _ := t.X.(*ast.Ident)
		if pkg == nil {
			return "unknown"
		}
		path := q.imports[pkg.Name]
		if rel, ok := strings.CutPrefix(path, q.gen.module+"/"); ok {
			return "@" + rel + ":" + t.Sel.Name
		}
		return pkg.Name + "." + t.Sel.Name
	case *ast.InterfaceType:
		return "interface{}"
	}
	return "unknown"
}

// tsType converts a rendered Go type to TypeScript.
func (g *generator) tsType(goType string, names map[string]string) string {
	goType = strings.TrimPrefix(goType, "*")
	if ts, ok := builtinTypes[goType]; ok {
		return ts
	}
	switch {
	case strings.HasPrefix(goType, "[]"):
		inner := g.tsType(goType[2:], names)
		if strings.Contains(inner, " | ") {
			inner = "(" + inner + ")"
		}
		return inner + "[]"
	case strings.HasPrefix(goType, "map["):
		end := strings.Index(goType, "]")
		return "Record<string, " + g.tsType(goType[end+1:], names) + ">"
	case strings.HasPrefix(goType, "@"):
		key := goType[1:]
		if ts, ok := names[key]; ok {
			return ts
		}
		if vals := g.enums[key]; len(vals) > 0 {
			return unionLiteral(vals)
		}
		if under, ok := g.aliases[key]; ok {
			return g.tsType(under, names)
		}
	}
	return "unknown"
}

func unionLiteral(vals []string) string {
	quoted := make([]string, len(vals))
	for i, v := range vals {
		quoted[i] = "'" + v + "'"
	}
	return strings.Join(quoted, " | ")
}

// generate writes the targets in order and returns the keys it could not find.
func (g *generator) generate(targets []target) ([]byte, []string) {
	names := make(map[string]string, len(targets))
	for _, t := range targets {
		names[t.key] = t.tsName
	}

	var buf bytes.Buffer
	buf.WriteString("// Code generated by cmd/typegen; DO NOT EDIT.\n")
	buf.WriteString("//\n")
	buf.WriteString("// Regenerate: go run ./cmd/typegen -out web/src/types/generated.ts\n\n")

	var missing []string
	for _, t := range targets {
		si, ok := g.structs[t.key]
		if !ok {
			missing = append(missing, t.key)
			continue
		}
		required := map[string]bool{}
		for _, r := range t.required {
			required[r] = true
		}
		fmt.Fprintf(&buf, "/** Generated from Go struct: %s */\n", t.key)
		fmt.Fprintf(&buf, "export interface %s {\n", t.tsName)
		for _, f := range si.fields {
			opt := "?"
			if required[f.jsonName] {
				opt = ""
			}
			fmt.Fprintf(&buf, "  %s%s: %s\n", f.jsonName, opt, g.tsType(f.goType, names))
		}
		buf.WriteString("}\n\n")
	}

	g.writeEventTypes(&buf)
	return buf.Bytes(), missing
}

// writeEventTypes emits the union of event type names and the SSE framing.
func (g *generator) writeEventTypes(buf *bytes.Buffer) {
	var vals []string
	for name, v := range g.consts[eventPackage] {
		if strings.HasPrefix(name, "Type") {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return
	}
	sort.Strings(vals)
	buf.WriteString("// --- Streaming ---\n\n")
	fmt.Fprintf(buf, "export type TutorEventType = %s\n\n", unionLiteral(vals))
	buf.WriteString("/** Each server-sent event is one line: `data: <TutorEvent JSON>` followed by a blank line. */\n")
	buf.WriteString("export const SSE_DATA_PREFIX = 'data: '\n")
}

package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/curly/compiler"
	"github.com/chazu/curly/vm"
)

const lspName = "curly-lsp"

// LspServer provides diagnostics, completion, hover and go-to-definition
// for curly documents. It works from source text alone; nothing is run.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new language server.
func NewLSP() *LspServer {
	s := &LspServer{
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("curly LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.setDocument(uri, text)
	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.setDocument(uri, whole.Text)
			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) setDocument(uri protocol.DocumentUri, text string) {
	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return complete(text, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return hover(text, params.Position), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	if loc := definition(uri, text, word); loc != nil {
		return []protocol.Location{*loc}, nil
	}
	return nil, nil
}

// --- Analysis-backed logic ---

// documentAnalysis analyzes text, returning an empty analysis when the
// text does not parse.
func documentAnalysis(text string) *compiler.Analysis {
	a, err := compiler.Analyze(text)
	if err != nil {
		return &compiler.Analysis{}
	}
	return a
}

// globalRoots returns the names bound in scope 0 before any program runs,
// sorted.
func globalRoots() []string {
	seen := map[string]bool{"NaN": true, "Infinity": true, "undefined": true}
	for _, b := range vm.Builtins() {
		root, _, _ := strings.Cut(b.Path, ".")
		seen[root] = true
	}
	roots := make([]string, 0, len(seen))
	for name := range seen {
		roots = append(roots, name)
	}
	sort.Strings(roots)
	return roots
}

func findBuiltin(path string) (vm.BuiltinInfo, bool) {
	for _, b := range vm.Builtins() {
		if b.Path == path {
			return b, true
		}
	}
	return vm.BuiltinInfo{}, false
}

func complete(text, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	// Dotted prefix: complete members of built-in containers.
	if i := strings.LastIndexByte(prefix, '.'); i >= 0 {
		container, partial := prefix[:i+1], prefix[i+1:]
		seen := make(map[string]bool)
		for _, b := range vm.Builtins() {
			if !strings.HasPrefix(b.Path, container) {
				continue
			}
			member, _, nested := strings.Cut(b.Path[len(container):], ".")
			if !strings.HasPrefix(member, partial) || seen[member] {
				continue
			}
			seen[member] = true
			if nested {
				add(member, protocol.CompletionItemKindModule, "object")
			} else {
				add(member, protocol.CompletionItemKindFunction, signature(member, b.Params))
			}
		}
		return items
	}

	for _, kw := range compiler.Keywords() {
		if strings.HasPrefix(kw, prefix) {
			add(kw, protocol.CompletionItemKindKeyword, "keyword")
		}
	}
	for _, name := range globalRoots() {
		if strings.HasPrefix(name, prefix) {
			add(name, protocol.CompletionItemKindModule, "built-in")
		}
	}
	analysis := documentAnalysis(text)
	for _, name := range analysis.Names() {
		if !strings.HasPrefix(name, prefix) || name == prefix {
			continue
		}
		d, _ := analysis.Lookup(name)
		if d.Function {
			add(name, protocol.CompletionItemKindFunction, signature(name, d.Params))
		} else {
			add(name, protocol.CompletionItemKindVariable, d.Kind)
		}
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

func hover(text string, pos protocol.Position) *protocol.Hover {
	path := extractPath(text, pos)
	if path == "" {
		return nil
	}

	var b strings.Builder
	if bi, ok := findBuiltin(path); ok {
		fmt.Fprintf(&b, "```\n%s\n```\n\nbuilt-in `%s`", signature(lastSegment(bi.Path), bi.Params), bi.Path)
	} else if word := lastSegment(path); path == word {
		if d, ok := documentAnalysis(text).Lookup(word); ok {
			if d.Function {
				fmt.Fprintf(&b, "```\n%s %s\n```", d.Kind, signature(d.Name, d.Params))
			} else {
				fmt.Fprintf(&b, "```\n%s %s\n```", d.Kind, d.Name)
			}
			fmt.Fprintf(&b, "\n\ndeclared on line %d", d.Span.Start.Line)
		} else if _, isKeyword := keywordSet()[word]; isKeyword {
			fmt.Fprintf(&b, "keyword `%s`", word)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func definition(uri protocol.DocumentUri, text, word string) *protocol.Location {
	d, ok := documentAnalysis(text).Lookup(word)
	if !ok {
		return nil
	}
	return &protocol.Location{
		URI:   uri,
		Range: spanRange(d.Span),
	}
}

func signature(name string, params []string) string {
	return name + "(" + strings.Join(params, ", ") + ")"
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func keywordSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, kw := range compiler.Keywords() {
		set[kw] = struct{}{}
	}
	return set
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: lspDiagnostics(Diagnose(text)),
	})
}

// lspDiagnostics converts diagnostics to LSP's 0-based positions.
func lspDiagnostics(ds []Diagnostic) []protocol.Diagnostic {
	out := []protocol.Diagnostic{}
	source := lspName
	for _, d := range ds {
		severity := protocol.DiagnosticSeverityError
		if d.Severity == SeverityWarning {
			severity = protocol.DiagnosticSeverityWarning
		}
		out = append(out, protocol.Diagnostic{
			Range: protocol.Range{
				Start: lspPosition(d.Line, d.Column),
				End:   lspPosition(d.EndLine, d.EndColumn),
			},
			Severity: &severity,
			Source:   &source,
			Message:  d.Message,
		})
	}
	return out
}

func lspPosition(line, column int) protocol.Position {
	if line < 1 {
		line = 1
	}
	if column < 1 {
		column = 1
	}
	return protocol.Position{Line: protocol.UInteger(line - 1), Character: protocol.UInteger(column - 1)}
}

func spanRange(span compiler.Span) protocol.Range {
	return protocol.Range{
		Start: lspPosition(span.Start.Line, span.Start.Column),
		End:   lspPosition(span.End.Line, span.End.Column),
	}
}

// --- Text extraction helpers ---

func isIdentRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '$'
}

// cursorLine returns the line under pos and the cursor column clamped to it.
func cursorLine(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

// extractPrefix returns the dotted name fragment before the cursor for
// completion, e.g. "Array.prototype.ma".
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}

	// Walk backwards from cursor to find the start of the name
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if isIdentRune(ch) || ch == '.' {
			start--
		} else {
			break
		}
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}
	start, end := wordBounds(line, col)
	return line[start:end]
}

// extractPath returns the identifier under the cursor together with the
// dotted receivers before it: on "isArray" in "Array.isArray(x)" it
// returns "Array.isArray".
func extractPath(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}
	start, end := wordBounds(line, col)
	if start == end {
		return ""
	}
	for start > 1 && line[start-1] == '.' && isIdentRune(rune(line[start-2])) {
		start--
		for start > 0 && isIdentRune(rune(line[start-1])) {
			start--
		}
	}
	return line[start:end]
}

func wordBounds(line string, col int) (int, int) {
	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isIdentRune(rune(line[end])) {
		end++
	}
	return start, end
}

func boolPtr(b bool) *bool {
	return &b
}

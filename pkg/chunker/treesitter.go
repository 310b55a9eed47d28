package chunker

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/contextforge/contextforge/pkg/types"
)

// treeSitterParser is the AST chunking strategy. Parsers are pooled per
// language because tree-sitter parsers are not safe for concurrent use.
type treeSitterParser struct {
	goPool sync.Pool
	pyPool sync.Pool
	jsPool sync.Pool
	tsPool sync.Pool
	once   sync.Once
}

func newTreeSitterParser() *treeSitterParser {
	return &treeSitterParser{}
}

func (p *treeSitterParser) init() {
	p.once.Do(func() {
		p.goPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(golang.GetLanguage())
			return parser
		}
		p.pyPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(python.GetLanguage())
			return parser
		}
		p.jsPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(javascript.GetLanguage())
			return parser
		}
		p.tsPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(typescript.GetLanguage())
			return parser
		}
	})
}

// hasGrammar reports whether an AST grammar is bundled for language.
func hasGrammar(language string) bool {
	switch language {
	case "go", "python", "javascript", "typescript":
		return true
	}
	return false
}

func (p *treeSitterParser) pool(language string) (*sync.Pool, error) {
	switch language {
	case "go":
		return &p.goPool, nil
	case "python":
		return &p.pyPool, nil
	case "javascript":
		return &p.jsPool, nil
	case "typescript":
		return &p.tsPool, nil
	}
	return nil, fmt.Errorf("no grammar for language %q", language)
}

// parse produces chunks for the declaration nodes of the syntax tree.
// Line ranges come straight from node positions; content is filled by the
// caller from the source slice.
func (p *treeSitterParser) parse(content, language string) ([]types.CodeChunk, error) {
	p.init()

	pool, err := p.pool(language)
	if err != nil {
		return nil, err
	}

	parser := pool.Get().(*sitter.Parser)
	defer pool.Put(parser)

	src := []byte(content)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("syntax tree contains errors")
	}

	var chunks []types.CodeChunk
	walkDeclarations(root, src, language, false, func(c types.CodeChunk) {
		chunks = append(chunks, c)
	})
	return chunks, nil
}

// walkDeclarations visits the tree and emits function, method, class and
// import chunks. insideClass marks python defs as methods.
func walkDeclarations(node *sitter.Node, src []byte, language string, insideClass bool, emit func(types.CodeChunk)) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}

		chunkType, named := classify(child.Type(), language, insideClass)
		if chunkType != "" {
			name := ""
			if named {
				name = nodeName(child, src)
			}
			emit(types.CodeChunk{
				Type:      chunkType,
				Name:      name,
				StartLine: int(child.StartPoint().Row) + 1,
				EndLine:   int(child.EndPoint().Row) + 1,
				Language:  language,
			})
		}

		// Recurse into containers so methods and nested declarations are
		// found; leaf declarations are not descended into.
		switch child.Type() {
		case "class_definition", "class_declaration", "block",
			"class_body", "decorated_definition", "export_statement",
			"program", "module", "source_file", "body":
			inClass := insideClass ||
				child.Type() == "class_definition" ||
				child.Type() == "class_declaration" ||
				child.Type() == "class_body"
			walkDeclarations(child, src, language, inClass, emit)
		}
	}
}

// classify maps a tree-sitter node type to a chunk type for the language.
func classify(nodeType, language string, insideClass bool) (types.ChunkType, bool) {
	switch language {
	case "go":
		switch nodeType {
		case "function_declaration":
			return types.ChunkFunction, true
		case "method_declaration":
			return types.ChunkMethod, true
		case "type_declaration":
			return types.ChunkClass, true
		case "import_declaration":
			return types.ChunkImport, false
		}
	case "python":
		switch nodeType {
		case "function_definition":
			if insideClass {
				return types.ChunkMethod, true
			}
			return types.ChunkFunction, true
		case "class_definition":
			return types.ChunkClass, true
		case "import_statement", "import_from_statement":
			return types.ChunkImport, false
		}
	case "javascript", "typescript":
		switch nodeType {
		case "function_declaration", "generator_function_declaration":
			return types.ChunkFunction, true
		case "method_definition":
			return types.ChunkMethod, true
		case "class_declaration":
			return types.ChunkClass, true
		case "import_statement":
			return types.ChunkImport, false
		case "lexical_declaration", "variable_declaration":
			// const f = () => {} and friends are surfaced as functions by
			// the regex strategy; mirror that here when an arrow or
			// function expression is the initializer.
			return "", false
		}
	}
	return "", false
}

// nodeName extracts the identifier of a declaration node.
func nodeName(node *sitter.Node, src []byte) string {
	if name := node.ChildByFieldName("name"); name != nil {
		return name.Content(src)
	}
	// Go type_declaration wraps type_spec nodes.
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child != nil && child.Type() == "type_spec" {
			if name := child.ChildByFieldName("name"); name != nil {
				return name.Content(src)
			}
		}
	}
	return ""
}

package chunker

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/types"
)

// Mode selects the chunking strategy.
type Mode string

const (
	// ModeAuto uses the AST strategy when a grammar is bundled for the
	// language and the regex strategy otherwise. The choice depends only
	// on the language, so re-chunking always lands on the same strategy.
	ModeAuto Mode = "auto"
	// ModeTreeSitter forces the AST strategy, falling back to regex when
	// parsing fails.
	ModeTreeSitter Mode = "tree_sitter"
	// ModeRegex forces the regex strategy.
	ModeRegex Mode = "regex"
)

// Chunker produces semantic chunks from source files.
type Chunker struct {
	mode         Mode
	maxChunkSize int
	ts           *treeSitterParser
	logger       zerolog.Logger
}

// New creates a Chunker. maxChunkSize <= 0 disables oversize splitting.
func New(mode Mode, maxChunkSize int) *Chunker {
	return &Chunker{
		mode:         mode,
		maxChunkSize: maxChunkSize,
		ts:           newTreeSitterParser(),
		logger:       log.WithComponent("chunker"),
	}
}

// ChunkContent chunks source content for the given language.
func (c *Chunker) ChunkContent(content, language string) []types.CodeChunk {
	if !Supported(language) {
		return nil
	}

	if language == "markdown" {
		return c.postProcess(chunkMarkdown(content), content)
	}

	var chunks []types.CodeChunk
	switch c.mode {
	case ModeRegex:
		chunks = chunkRegex(content, language)
	case ModeTreeSitter:
		parsed, err := c.ts.parse(content, language)
		if err != nil {
			c.logger.Debug().Err(err).Str("language", language).Msg("ast parse failed, falling back to regex")
			chunks = chunkRegex(content, language)
		} else {
			chunks = parsed
		}
	default: // ModeAuto
		if hasGrammar(language) {
			parsed, err := c.ts.parse(content, language)
			if err != nil {
				chunks = chunkRegex(content, language)
			} else {
				chunks = parsed
			}
		} else {
			chunks = chunkRegex(content, language)
		}
	}

	return c.postProcess(chunks, content)
}

// postProcess fills content from the authoritative line slice and splits
// chunks exceeding maxChunkSize on line boundaries.
func (c *Chunker) postProcess(chunks []types.CodeChunk, content string) []types.CodeChunk {
	lines := strings.Split(content, "\n")

	out := make([]types.CodeChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.StartLine < 1 {
			chunk.StartLine = 1
		}
		if chunk.EndLine > len(lines) {
			chunk.EndLine = len(lines)
		}
		if chunk.EndLine < chunk.StartLine {
			continue
		}
		chunk.Content = strings.Join(lines[chunk.StartLine-1:chunk.EndLine], "\n")

		if c.maxChunkSize > 0 && len(chunk.Content) > c.maxChunkSize {
			out = append(out, c.split(chunk)...)
			continue
		}
		out = append(out, chunk)
	}
	return out
}

// split breaks an oversized chunk into name_partN sub-chunks with
// contiguous line ranges.
func (c *Chunker) split(chunk types.CodeChunk) []types.CodeChunk {
	lines := strings.Split(chunk.Content, "\n")

	var parts []types.CodeChunk
	part := 1
	startIdx := 0
	size := 0

	flush := func(endIdx int) {
		sub := chunk
		sub.Name = fmt.Sprintf("%s_part%d", chunk.Name, part)
		sub.StartLine = chunk.StartLine + startIdx
		sub.EndLine = chunk.StartLine + endIdx
		sub.Content = strings.Join(lines[startIdx:endIdx+1], "\n")
		parts = append(parts, sub)
		part++
	}

	for i, line := range lines {
		lineSize := len(line) + 1
		if size > 0 && size+lineSize > c.maxChunkSize {
			flush(i - 1)
			startIdx = i
			size = 0
		}
		size += lineSize
	}
	if startIdx < len(lines) {
		flush(len(lines) - 1)
	}
	return parts
}

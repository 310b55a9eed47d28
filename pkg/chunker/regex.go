package chunker

import (
	"regexp"
	"strings"

	"github.com/contextforge/contextforge/pkg/types"
)

var (
	goFuncRe   = regexp.MustCompile(`^func\s+([A-Za-z_]\w*)\s*[(\[]`)
	goMethodRe = regexp.MustCompile(`^func\s+\([^)]+\)\s+([A-Za-z_]\w*)\s*[(\[]`)
	goTypeRe   = regexp.MustCompile(`^type\s+([A-Za-z_]\w*)\s+(struct|interface)\b`)
	goImportRe = regexp.MustCompile(`^import\s*(\(|")`)

	pyDefRe    = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_]\w*)`)
	pyClassRe  = regexp.MustCompile(`^(\s*)class\s+([A-Za-z_]\w*)`)
	pyImportRe = regexp.MustCompile(`^(?:import|from)\s+\S`)

	jsFuncRe   = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)?\s*\(`)
	jsArrowRe  = regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s+)?(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*=>`)
	jsClassRe  = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?class\s+([A-Za-z_$][\w$]*)`)
	jsImportRe = regexp.MustCompile(`^\s*import\s`)

	mdHeadingRe = regexp.MustCompile("^#{1,6}\\s+(.*)")
	mdFenceRe   = regexp.MustCompile("^```(\\w*)")
)

// chunkRegex is the regex chunking strategy for code languages.
func chunkRegex(content, language string) []types.CodeChunk {
	switch language {
	case "go":
		return chunkGoRegex(content)
	case "python":
		return chunkPythonRegex(content)
	case "javascript", "typescript":
		return chunkJSRegex(content, language)
	}
	return nil
}

func chunkGoRegex(content string) []types.CodeChunk {
	lines := strings.Split(content, "\n")
	var chunks []types.CodeChunk

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		switch {
		case goMethodRe.MatchString(line):
			end := matchBraces(lines, i)
			chunks = append(chunks, types.CodeChunk{
				Type: types.ChunkMethod, Name: goMethodRe.FindStringSubmatch(line)[1],
				StartLine: i + 1, EndLine: end + 1, Language: "go",
			})
			i = end
		case goFuncRe.MatchString(line):
			end := matchBraces(lines, i)
			chunks = append(chunks, types.CodeChunk{
				Type: types.ChunkFunction, Name: goFuncRe.FindStringSubmatch(line)[1],
				StartLine: i + 1, EndLine: end + 1, Language: "go",
			})
			i = end
		case goTypeRe.MatchString(line):
			end := matchBraces(lines, i)
			chunks = append(chunks, types.CodeChunk{
				Type: types.ChunkClass, Name: goTypeRe.FindStringSubmatch(line)[1],
				StartLine: i + 1, EndLine: end + 1, Language: "go",
			})
			i = end
		case goImportRe.MatchString(line):
			end := i
			if strings.Contains(line, "(") {
				for end < len(lines)-1 && !strings.HasPrefix(strings.TrimSpace(lines[end]), ")") {
					end++
				}
			}
			chunks = append(chunks, types.CodeChunk{
				Type: types.ChunkImport, Name: "imports",
				StartLine: i + 1, EndLine: end + 1, Language: "go",
			})
			i = end
		}
	}
	return chunks
}

func chunkPythonRegex(content string) []types.CodeChunk {
	lines := strings.Split(content, "\n")
	var chunks []types.CodeChunk

	// Module docstring: a string literal as the first statement.
	if start, end, ok := pythonDocstring(lines); ok {
		chunks = append(chunks, types.CodeChunk{
			Type: types.ChunkDocstring, Name: "module_docstring",
			StartLine: start + 1, EndLine: end + 1, Language: "python",
		})
	}

	importStart := -1
	flushImports := func(endIdx int) {
		if importStart >= 0 {
			chunks = append(chunks, types.CodeChunk{
				Type: types.ChunkImport, Name: "imports",
				StartLine: importStart + 1, EndLine: endIdx + 1, Language: "python",
			})
			importStart = -1
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if pyImportRe.MatchString(line) {
			if importStart < 0 {
				importStart = i
			}
			continue
		}
		if importStart >= 0 && strings.TrimSpace(line) != "" {
			flushImports(i - 1)
		}

		if m := pyClassRe.FindStringSubmatch(line); m != nil {
			end := pythonBlockEnd(lines, i, len(m[1]))
			chunks = append(chunks, types.CodeChunk{
				Type: types.ChunkClass, Name: m[2],
				StartLine: i + 1, EndLine: end + 1, Language: "python",
			})
			// Methods inside the class are emitted as their own chunks.
			for j := i + 1; j <= end; j++ {
				if dm := pyDefRe.FindStringSubmatch(lines[j]); dm != nil && len(dm[1]) > len(m[1]) {
					mEnd := pythonBlockEnd(lines, j, len(dm[1]))
					chunks = append(chunks, types.CodeChunk{
						Type: types.ChunkMethod, Name: dm[2],
						StartLine: j + 1, EndLine: mEnd + 1, Language: "python",
					})
					j = mEnd
				}
			}
			i = end
			continue
		}

		if m := pyDefRe.FindStringSubmatch(line); m != nil && len(m[1]) == 0 {
			end := pythonBlockEnd(lines, i, 0)
			chunks = append(chunks, types.CodeChunk{
				Type: types.ChunkFunction, Name: m[2],
				StartLine: i + 1, EndLine: end + 1, Language: "python",
			})
			i = end
		}
	}
	flushImports(len(lines) - 1)
	return chunks
}

func chunkJSRegex(content, language string) []types.CodeChunk {
	lines := strings.Split(content, "\n")
	var chunks []types.CodeChunk

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		switch {
		case jsImportRe.MatchString(line):
			chunks = append(chunks, types.CodeChunk{
				Type: types.ChunkImport, Name: "imports",
				StartLine: i + 1, EndLine: i + 1, Language: language,
			})
		case jsClassRe.MatchString(line):
			end := matchBraces(lines, i)
			chunks = append(chunks, types.CodeChunk{
				Type: types.ChunkClass, Name: jsClassRe.FindStringSubmatch(line)[1],
				StartLine: i + 1, EndLine: end + 1, Language: language,
			})
			i = end
		case jsFuncRe.MatchString(line):
			name := jsFuncRe.FindStringSubmatch(line)[1]
			if name == "" {
				name = "anonymous"
			}
			end := matchBraces(lines, i)
			chunks = append(chunks, types.CodeChunk{
				Type: types.ChunkFunction, Name: name,
				StartLine: i + 1, EndLine: end + 1, Language: language,
			})
			i = end
		case jsArrowRe.MatchString(line):
			end := matchBraces(lines, i)
			chunks = append(chunks, types.CodeChunk{
				Type: types.ChunkFunction, Name: jsArrowRe.FindStringSubmatch(line)[1],
				StartLine: i + 1, EndLine: end + 1, Language: language,
			})
			i = end
		}
	}
	return chunks
}

// chunkMarkdown splits on heading boundaries and records fenced code-block
// languages in chunk metadata.
func chunkMarkdown(content string) []types.CodeChunk {
	lines := strings.Split(content, "\n")
	var chunks []types.CodeChunk

	start := 0
	name := "preamble"
	inFence := false
	var fenceLangs []string

	flush := func(endIdx int) {
		if endIdx < start {
			return
		}
		empty := true
		for _, l := range lines[start : endIdx+1] {
			if strings.TrimSpace(l) != "" {
				empty = false
				break
			}
		}
		if empty {
			return
		}
		chunk := types.CodeChunk{
			Type: types.ChunkTextBlock, Name: name,
			StartLine: start + 1, EndLine: endIdx + 1, Language: "markdown",
		}
		if len(fenceLangs) > 0 {
			chunk.Metadata = map[string]string{"code_languages": strings.Join(fenceLangs, ",")}
		}
		chunks = append(chunks, chunk)
		fenceLangs = nil
	}

	for i, line := range lines {
		if m := mdFenceRe.FindStringSubmatch(line); m != nil {
			if !inFence && m[1] != "" {
				fenceLangs = append(fenceLangs, m[1])
			}
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if m := mdHeadingRe.FindStringSubmatch(line); m != nil {
			flush(i - 1)
			start = i
			name = strings.TrimSpace(m[1])
		}
	}
	flush(len(lines) - 1)
	return chunks
}

// matchBraces returns the index of the line closing the block opened at
// startIdx. When no brace opens on or after startIdx, the start line itself
// is the block.
func matchBraces(lines []string, startIdx int) int {
	depth := 0
	opened := false
	for i := startIdx; i < len(lines); i++ {
		for _, r := range lines[i] {
			switch r {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
				if opened && depth == 0 {
					return i
				}
			}
		}
		// A declaration with no block on its own line (e.g. a one-line
		// arrow function without braces).
		if !opened && i > startIdx {
			return startIdx
		}
	}
	if opened {
		return len(lines) - 1
	}
	return startIdx
}

// pythonBlockEnd returns the last line of the indented block starting at
// startIdx with the given indent width.
func pythonBlockEnd(lines []string, startIdx, indent int) int {
	end := startIdx
	for i := startIdx + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if indentWidth(lines[i]) <= indent {
			break
		}
		end = i
	}
	return end
}

func indentWidth(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

// pythonDocstring finds a module-level docstring at the top of the file.
func pythonDocstring(lines []string) (start, end int, ok bool) {
	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			i++
			continue
		}
		break
	}
	if i >= len(lines) {
		return 0, 0, false
	}

	trimmed := strings.TrimSpace(lines[i])
	for _, q := range []string{`"""`, "'''"} {
		if !strings.HasPrefix(trimmed, q) {
			continue
		}
		rest := strings.TrimPrefix(trimmed, q)
		if strings.Contains(rest, q) {
			return i, i, true
		}
		for j := i + 1; j < len(lines); j++ {
			if strings.Contains(lines[j], q) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

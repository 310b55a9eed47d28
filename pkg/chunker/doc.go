/*
Package chunker turns source files into semantic chunks.

Two strategies exist. The AST strategy parses with tree-sitter (pooled
parsers per language, since parsers are not safe for concurrent use) and
emits function, method, class and import declarations with exact line
ranges. The regex strategy recognizes the same constructs with
language-specific patterns, brace matching for block bodies and
indentation tracking for python; markdown is chunked on heading
boundaries with fenced code-block languages recorded in metadata.

Mode AUTO uses the AST when a grammar is bundled for the language and
regex otherwise, so the same file always chunks the same way;
TREE_SITTER forces the AST with regex as the failure fallback; REGEX
forces regex. Regardless of strategy, chunk content is re-sliced from the
source by line range, so a chunk's content always equals the file slice
its line numbers imply. Oversized chunks split on line boundaries into
name_partN sub-chunks with contiguous ranges.
*/
package chunker

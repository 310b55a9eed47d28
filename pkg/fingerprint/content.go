package fingerprint

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/types"
)

// ContentStore keeps truncated-output content addressable by short
// reference ids until the TTL expires. Eviction is LRU by creation time
// with a hard count cap.
type ContentStore struct {
	mu       sync.Mutex
	refs     map[string]*types.ChunkReference
	maxRefs  int
	ttl      time.Duration
	maxMatch int
	newID    func() string
}

// SearchOptions control ContentStore.Search.
type SearchOptions struct {
	UseRegex      bool
	CaseSensitive bool
	ContextLines  int
}

// SearchMatch is one matching line with its surrounding context.
type SearchMatch struct {
	LineNumber int      `json:"line_number"`
	Line       string   `json:"line"`
	Context    []string `json:"context"`
}

// SearchResult reports all matches for a pattern, capped at the configured
// maximum.
type SearchResult struct {
	Matches   []SearchMatch `json:"matches"`
	Total     int           `json:"total"`
	Truncated bool          `json:"truncated"`
}

// ViewResult is a rendered line range from a stored reference.
type ViewResult struct {
	Content    string `json:"content"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	TotalLines int    `json:"total_lines"`
}

// NewContentStore creates a content store with the given limits.
func NewContentStore(maxRefs int, ttl time.Duration, maxSearchResults int) *ContentStore {
	return &ContentStore{
		refs:     make(map[string]*types.ChunkReference),
		maxRefs:  maxRefs,
		ttl:      ttl,
		maxMatch: maxSearchResults,
		newID:    func() string { return uuid.New().String() },
	}
}

// StoreContent records content and returns a short shareable reference id.
// Expired and excess entries are evicted before the new entry is stored.
func (c *ContentStore) StoreContent(content, source string, metadata map[string]string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictLocked()

	now := time.Now()
	id := c.newID()
	refID := "ref_" + strings.ReplaceAll(id, "-", "")[:8]
	for {
		if _, taken := c.refs[refID]; !taken {
			break
		}
		// Short ids can collide; regenerate rather than overwrite.
		id = c.newID()
		refID = "ref_" + strings.ReplaceAll(id, "-", "")[:8]
	}
	ref := &types.ChunkReference{
		ID:          id,
		ReferenceID: refID,
		Content:     content,
		Source:      source,
		TotalLines:  countLines([]byte(content)),
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.ttl),
		Metadata:    metadata,
	}
	c.refs[ref.ReferenceID] = ref

	l := log.WithComponent("content-store")
	l.Debug().
		Str("reference_id", ref.ReferenceID).
		Str("source", source).
		Int("total_lines", ref.TotalLines).
		Msg("content stored")

	return ref.ReferenceID
}

// Get returns the reference for id if it has not expired.
func (c *ContentStore) Get(referenceID string) (*types.ChunkReference, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpiredLocked()

	ref, ok := c.refs[referenceID]
	if !ok {
		return nil, fmt.Errorf("%w: reference %s", types.ErrNotFound, referenceID)
	}
	return ref, nil
}

// ViewRange returns lines [start, end] of a stored reference, 1-based and
// inclusive. End is clamped to the total line count; an out-of-range start
// is a validation error.
func (c *ContentStore) ViewRange(referenceID string, start, end int) (*ViewResult, error) {
	ref, err := c.Get(referenceID)
	if err != nil {
		return nil, err
	}

	lines := splitLines(ref.Content)
	total := len(lines)

	if start < 1 || start > end || start > total {
		return nil, fmt.Errorf("%w: invalid range [%d, %d] for %d lines",
			types.ErrValidation, start, end, total)
	}
	if end > total {
		end = total
	}

	return &ViewResult{
		Content:    strings.Join(lines[start-1:end], "\n"),
		StartLine:  start,
		EndLine:    end,
		TotalLines: total,
	}, nil
}

// Search finds lines matching pattern in a stored reference, returning each
// with ContextLines of surrounding context. Results are capped.
func (c *ContentStore) Search(referenceID, pattern string, opts SearchOptions) (*SearchResult, error) {
	ref, err := c.Get(referenceID)
	if err != nil {
		return nil, err
	}

	match, err := compileMatcher(pattern, opts)
	if err != nil {
		return nil, err
	}

	lines := splitLines(ref.Content)
	result := &SearchResult{}
	for i, line := range lines {
		if !match(line) {
			continue
		}
		result.Total++
		if len(result.Matches) >= c.maxMatch {
			result.Truncated = true
			continue
		}

		lo := max(0, i-opts.ContextLines)
		hi := min(len(lines), i+opts.ContextLines+1)
		result.Matches = append(result.Matches, SearchMatch{
			LineNumber: i + 1,
			Line:       line,
			Context:    append([]string(nil), lines[lo:hi]...),
		})
	}
	return result, nil
}

// Stats returns the current reference count.
func (c *ContentStore) Stats() (count int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpiredLocked()
	return len(c.refs), c.maxRefs
}

func compileMatcher(pattern string, opts SearchOptions) (func(string) bool, error) {
	if opts.UseRegex {
		expr := pattern
		if !opts.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrRegex, err)
		}
		return re.MatchString, nil
	}

	if opts.CaseSensitive {
		return func(s string) bool { return strings.Contains(s, pattern) }, nil
	}
	lower := strings.ToLower(pattern)
	return func(s string) bool { return strings.Contains(strings.ToLower(s), lower) }, nil
}

// evictExpiredLocked drops references past their TTL.
func (c *ContentStore) evictExpiredLocked() {
	now := time.Now()
	for id, ref := range c.refs {
		if now.After(ref.ExpiresAt) {
			delete(c.refs, id)
		}
	}
}

// evictLocked drops expired entries, then the oldest entries until one slot
// is free for the next store.
func (c *ContentStore) evictLocked() {
	c.evictExpiredLocked()
	if len(c.refs) < c.maxRefs {
		return
	}

	ordered := make([]*types.ChunkReference, 0, len(c.refs))
	for _, ref := range c.refs {
		ordered = append(ordered, ref)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	for _, ref := range ordered {
		if len(c.refs) < c.maxRefs {
			break
		}
		delete(c.refs, ref.ReferenceID)
	}
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

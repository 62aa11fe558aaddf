package knowledge

import (
	"crypto/md5" //nolint:gosec // content fingerprint for chunk ids, not a security boundary
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50

	paragraphSep = "\n\n"
	sentenceSep  = " "
)

// headerRe matches level-2 and level-3 markdown headers.
var headerRe = regexp.MustCompile(`^#{2,3}\s+(.+)$`)

// ChunkerConfig sizes chunks in characters, not tokens.
type ChunkerConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// Chunker splits markdown runbooks into header-aware chunks.
type Chunker struct {
	cfg ChunkerConfig
}

// NewChunker returns a Chunker, filling zero values with the defaults.
func NewChunker(cfg ChunkerConfig) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	return &Chunker{cfg: cfg}
}

// Config returns the effective configuration.
func (c *Chunker) Config() ChunkerConfig { return c.cfg }

type section struct {
	header string
	body   string
}

// Chunk splits content into chunks. Sections are cut at ## and ### headers,
// oversized sections fall back to paragraphs, oversized paragraphs to
// sentences with overlap. ChunkIndex runs across the whole document.
func (c *Chunker) Chunk(content, sourceFile string) []Chunk {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	docType := InferType(sourceFile)

	var chunks []Chunk
	for _, sec := range splitSections(content) {
		if sec.body == "" {
			continue
		}

		header := sec.header
		if header == "" {
			header = DefaultSection
		}

		parts := []string{sec.body}
		if runeLen(sec.body) > c.cfg.ChunkSize {
			parts = c.splitParagraphs(sec.body)
		}

		for i, part := range parts {
			title := header
			meta := Metadata{Source: sourceFile, Section: header, Type: docType}
			if len(parts) > 1 {
				title = fmt.Sprintf("%s (Part %d)", header, i+1)
				meta.Part = i + 1
			}
			chunks = append(chunks, Chunk{
				Content:       "## " + title + paragraphSep + part,
				Body:          part,
				SourceFile:    sourceFile,
				SectionHeader: header,
				ChunkIndex:    len(chunks),
				Metadata:      meta,
			})
		}
	}
	return chunks
}

// ChunkID derives the deterministic index id of a chunk. It changes
// whenever the chunk content changes.
func ChunkID(c Chunk) string {
	sum := md5.Sum([]byte(c.Content)) //nolint:gosec // see import
	return fmt.Sprintf("%s_%d_%s", c.SourceFile, c.ChunkIndex, hex.EncodeToString(sum[:])[:8])
}

func splitSections(content string) []section {
	var (
		sections []section
		header   string
		lines    []string
	)
	flush := func() {
		if len(lines) > 0 || header != "" {
			sections = append(sections, section{
				header: header,
				body:   strings.TrimSpace(strings.Join(lines, "\n")),
			})
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if m := headerRe.FindStringSubmatch(line); m != nil {
			flush()
			header = strings.TrimSpace(m[1])
			lines = nil
			continue
		}
		lines = append(lines, line)
	}
	flush()
	return sections
}

// splitParagraphs packs blank-line separated paragraphs greedily.
func (c *Chunker) splitParagraphs(text string) []string {
	size := c.cfg.ChunkSize

	var (
		chunks []string
		cur    []string
		curLen int
	)
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, paragraphSep))
		}
		cur, curLen = nil, 0
	}

	for _, para := range strings.Split(text, paragraphSep) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		n := runeLen(para)

		next := n
		if len(cur) > 0 {
			next = curLen + len(paragraphSep) + n
		}
		if next <= size {
			cur = append(cur, para)
			curLen = next
			continue
		}

		flush()
		if n > size {
			chunks = append(chunks, c.groupSentences(splitSentences(para))...)
			continue
		}
		cur, curLen = []string{para}, n
	}
	flush()
	return chunks
}

// groupSentences packs sentences greedily. Each new chunk is seeded with
// the tail of the previous one, up to ChunkOverlap characters.
func (c *Chunker) groupSentences(sentences []string) []string {
	size := c.cfg.ChunkSize

	var (
		chunks []string
		cur    []string
		curLen int
	)
	for _, s := range sentences {
		n := runeLen(s)

		next := n
		if len(cur) > 0 {
			next = curLen + len(sentenceSep) + n
		}
		if next <= size || len(cur) == 0 {
			// a lone sentence longer than size is kept whole
			cur = append(cur, s)
			curLen = next
			continue
		}

		chunks = append(chunks, strings.Join(cur, sentenceSep))

		seed := c.overlapTail(cur)
		for len(seed) > 0 && joinedLen(seed, sentenceSep)+len(sentenceSep)+n > size {
			seed = seed[1:]
		}
		cur = append(seed, s)
		curLen = joinedLen(cur, sentenceSep)
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, sentenceSep))
	}
	return chunks
}

// overlapTail returns the trailing sentences whose cumulative length fits
// in ChunkOverlap. The result never aliases sentences.
func (c *Chunker) overlapTail(sentences []string) []string {
	var (
		tail []string
		used int
	)
	for i := len(sentences) - 1; i >= 0; i-- {
		n := runeLen(sentences[i])
		if used+n > c.cfg.ChunkOverlap {
			break
		}
		tail = append([]string{sentences[i]}, tail...)
		used += n + len(sentenceSep)
	}
	return tail
}

// splitSentences cuts after '.', '!' or '?' when followed by whitespace.
func splitSentences(text string) []string {
	rs := []rune(text)

	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	start := 0
	for i := 0; i < len(rs); i++ {
		switch rs[i] {
		case '.', '!', '?':
		default:
			continue
		}
		if i+1 >= len(rs) || !unicode.IsSpace(rs[i+1]) {
			continue
		}
		add(string(rs[start : i+1]))
		j := i + 1
		for j < len(rs) && unicode.IsSpace(rs[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(rs) {
		add(string(rs[start:]))
	}
	return out
}

func joinedLen(parts []string, sep string) int {
	if len(parts) == 0 {
		return 0
	}
	n := len(sep) * (len(parts) - 1)
	for _, p := range parts {
		n += runeLen(p)
	}
	return n
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

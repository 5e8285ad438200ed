package chunk

import (
	"context"
	"regexp"
	"strings"
)

// Matches headers: # Title, ## Title, etc.
var headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// MarkdownChunker implements header-based Markdown chunking.
type MarkdownChunker struct {
	config Config
}

// NewMarkdownChunker creates a chunker with default options.
func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithConfig(Config{})
}

// NewMarkdownChunkerWithConfig creates a chunker with custom options.
func NewMarkdownChunkerWithConfig(cfg Config) *MarkdownChunker {
	return &MarkdownChunker{config: cfg.withDefaults()}
}

var _ Chunker = (*MarkdownChunker)(nil)

// Chunk splits canonical Markdown into chunks, numbering them
// sequentially from 0 within the input's mirrorHash.
func (c *MarkdownChunker) Chunk(_ context.Context, input Input) ([]Chunk, error) {
	content := input.Markdown
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	sections := c.parseSections(content)

	seq := 0
	var chunks []Chunk

	if len(sections) == 0 {
		for _, span := range c.chunkByParagraphs(content, "") {
			span.MirrorHash = input.MirrorHash
			span.Seq = seq
			seq++
			chunks = append(chunks, span)
		}
		return chunks, nil
	}

	for _, sec := range sections {
		for _, span := range c.createSectionChunks(sec) {
			span.MirrorHash = input.MirrorHash
			span.Seq = seq
			seq++
			chunks = append(chunks, span)
		}
	}

	return chunks, nil
}

// section represents a markdown section with header info.
type section struct {
	headerLevel int
	headerTitle string
	headerPath  string
	content     string
	startLine   int // 1-indexed line number within the content
}

// parseSections parses markdown content into sections, tracking a
// header stack so nested headings build a "A > B > C" path.
func (c *MarkdownChunker) parseSections(content string) []*section {
	lines := strings.Split(content, "\n")
	var sections []*section
	headerStack := make([]string, 6)

	var currentSection *section
	var contentBuilder strings.Builder

	for lineNum, line := range lines {
		if match := headerPattern.FindStringSubmatch(line); match != nil {
			if currentSection != nil {
				currentSection.content = contentBuilder.String()
				sections = append(sections, currentSection)
				contentBuilder.Reset()
			}

			level := len(match[1])
			title := strings.TrimSpace(match[2])

			headerStack[level-1] = title
			for i := level; i < 6; i++ {
				headerStack[i] = ""
			}

			var pathParts []string
			for i := 0; i < level; i++ {
				if headerStack[i] != "" {
					pathParts = append(pathParts, headerStack[i])
				}
			}

			currentSection = &section{
				headerLevel: level,
				headerTitle: title,
				headerPath:  strings.Join(pathParts, " > "),
				startLine:   lineNum + 1,
			}
			contentBuilder.WriteString(line)
			contentBuilder.WriteString("\n")
		} else {
			contentBuilder.WriteString(line)
			contentBuilder.WriteString("\n")
		}
	}

	if currentSection != nil {
		currentSection.content = contentBuilder.String()
		sections = append(sections, currentSection)
	}

	return sections
}

// createSectionChunks creates one or more chunks from a section.
func (c *MarkdownChunker) createSectionChunks(sec *section) []Chunk {
	content := strings.TrimRight(sec.content, "\n")

	trimmedContent := strings.TrimSpace(content)
	lines := strings.Split(trimmedContent, "\n")
	if len(lines) <= 1 && headerPattern.MatchString(trimmedContent) {
		return nil
	}

	tokens := estimateTokens(content)

	if tokens <= c.config.MaxChunkTokens {
		startLine := sec.startLine
		endLine := startLine + strings.Count(content, "\n")

		return []Chunk{{
			Content:    content,
			StartLine:  startLine,
			EndLine:    endLine,
			TokenCount: tokens,
			HeaderPath: sec.headerPath,
		}}
	}

	return c.splitLargeSection(sec, content, sec.startLine)
}

// splitLargeSection splits a large section into multiple chunks,
// keeping atomic blocks (fenced code, tables) intact.
func (c *MarkdownChunker) splitLargeSection(sec *section, content string, startLine int) []Chunk {
	paragraphs := c.splitByParagraphs(content)

	var chunks []Chunk
	var currentContent strings.Builder
	currentStartLine := startLine
	lineCount := 0

	for i, para := range paragraphs {
		paraLines := strings.Count(para, "\n") + 1
		paraTokens := estimateTokens(para)
		currentTokens := estimateTokens(currentContent.String())

		if currentContent.Len() > 0 && currentTokens+paraTokens > c.config.MaxChunkTokens {
			chunks = append(chunks, c.finishChunk(sec, currentContent.String(), currentStartLine, startLine+lineCount-2))

			currentContent.Reset()
			currentStartLine = startLine + lineCount

			if i > 0 {
				currentContent.WriteString("<!-- Section: ")
				currentContent.WriteString(sec.headerPath)
				currentContent.WriteString(" -->\n\n")
			}
		}

		currentContent.WriteString(para)
		currentContent.WriteString("\n\n")
		lineCount += paraLines + 1
	}

	if currentContent.Len() > 0 {
		chunks = append(chunks, c.finishChunk(sec, currentContent.String(), currentStartLine, startLine+lineCount-2))
	}

	return chunks
}

func (c *MarkdownChunker) finishChunk(sec *section, content string, startLine, endLine int) Chunk {
	content = strings.TrimRight(content, "\n ")
	return Chunk{
		Content:    content,
		StartLine:  startLine,
		EndLine:    endLine,
		TokenCount: estimateTokens(content),
		HeaderPath: sec.headerPath,
	}
}

// splitByParagraphs splits content by blank lines, re-merging any
// fenced code block that a naive blank-line split would break apart.
func (c *MarkdownChunker) splitByParagraphs(content string) []string {
	parts := strings.Split(content, "\n\n")

	var paragraphs []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	return c.mergeAtomicBlocks(paragraphs)
}

// mergeAtomicBlocks re-joins paragraphs that a blank-line split broke
// in the middle of a fenced code block.
func (c *MarkdownChunker) mergeAtomicBlocks(paragraphs []string) []string {
	var result []string
	var inCodeBlock bool
	var codeBlockBuilder strings.Builder

	for _, para := range paragraphs {
		if inCodeBlock {
			codeBlockBuilder.WriteString("\n\n")
			codeBlockBuilder.WriteString(para)
			if strings.Contains(para, "```") {
				result = append(result, codeBlockBuilder.String())
				codeBlockBuilder.Reset()
				inCodeBlock = false
			}
			continue
		}

		openCount := strings.Count(para, "```")
		if openCount > 0 && openCount%2 == 1 {
			inCodeBlock = true
			codeBlockBuilder.WriteString(para)
			continue
		}

		result = append(result, para)
	}

	if inCodeBlock {
		result = append(result, codeBlockBuilder.String())
	}

	return result
}

// chunkByParagraphs chunks content without any headings, by paragraph.
func (c *MarkdownChunker) chunkByParagraphs(content, headerPath string) []Chunk {
	paragraphs := strings.Split(content, "\n\n")

	var chunks []Chunk
	var currentContent strings.Builder
	currentStartLine := 1
	lineCount := 0

	flush := func() {
		if currentContent.Len() == 0 {
			return
		}
		text := currentContent.String()
		chunks = append(chunks, Chunk{
			Content:    text,
			StartLine:  currentStartLine,
			EndLine:    currentStartLine + lineCount - 2,
			TokenCount: estimateTokens(text),
			HeaderPath: headerPath,
		})
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		paraLines := strings.Count(para, "\n") + 1
		paraTokens := estimateTokens(para)
		currentTokens := estimateTokens(currentContent.String())

		if currentContent.Len() > 0 && currentTokens+paraTokens > c.config.MaxChunkTokens {
			flush()
			currentContent.Reset()
			currentStartLine = currentStartLine + lineCount
			lineCount = 0
		}

		if currentContent.Len() > 0 {
			currentContent.WriteString("\n\n")
		}
		currentContent.WriteString(para)
		lineCount += paraLines + 1
	}

	flush()

	return chunks
}

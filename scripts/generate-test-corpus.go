//go:build ignore

// Package main generates a synthetic markdown note corpus for
// benchmarking sync/chunk/search/linkengine.
// Usage: go run scripts/generate-test-corpus.go -files 1000 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numFiles  = flag.Int("files", 1000, "Number of notes to generate")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// noteTemplate is a markdown note with YAML frontmatter, a handful of
// headings and paragraphs to give chunking something to split on, a
// code fence, and wiki-links to other generated notes so linkengine
// has a real graph to walk.
var noteTemplate = `---
title: %s
tags: [%s, %s]
created: 2026-01-%02d
---

# %s

## Overview

%s covers %s in the context of %s. See also [[%s]] and [[%s|related note]].

## Details

- relates to %s
- depends on [[%s]]
- %s

` + "```" + `
example: %s
config:
  enabled: true
  mode: %s
` + "```" + `

## Notes

%s is still a work in progress; cross-reference [[%s#%s]] for the
latest thinking.
`

var (
	nouns = []string{
		"Indexing", "Retrieval", "Chunking", "Embedding", "Capture",
		"Sync", "Locking", "Search", "Ranking", "Linking",
		"Graph", "Collection", "Config", "Adapter", "Ingest",
		"Canon", "Docref", "Preflight", "Telemetry", "Doctor",
	}
	adjectives = []string{
		"hybrid", "incremental", "local-first", "offline", "durable",
		"lexical", "semantic", "bounded", "background", "declarative",
	}
	domains = []string{
		"note-taking", "knowledge bases", "markdown corpora", "personal wikis",
		"documentation sites", "research notes", "project logs", "meeting notes",
	}
	sections = []string{"overview", "details", "notes", "open-questions"}
)

func randomWord(pool []string) string {
	return pool[rand.Intn(len(pool))]
}

func slug(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, " ", "-"))
}

// noteName is deterministic in index (not randomized) so that a link
// built from one note's index always resolves to another note's
// actual filename.
func noteName(index int) string {
	return fmt.Sprintf("note-%d", index)
}

func main() {
	flag.Parse()
	rand.Seed(*seed)

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generating %d notes in %s...\n", *numFiles, *outputDir)

	generated := 0
	for i := 0; i < *numFiles; i++ {
		if err := generateNote(i); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating note %d: %v\n", i, err)
			continue
		}
		generated++
	}

	fmt.Printf("Generated %d notes successfully.\n", generated)
}

func generateNote(index int) error {
	noun := randomWord(nouns)
	adj := randomWord(adjectives)
	domain := randomWord(domains)
	tagA := slug(randomWord(adjectives))
	tagB := slug(randomWord(nouns))

	// Link to two other notes in the corpus (wrapping so early indices
	// still produce valid forward references within *numFiles).
	linkA := noteName((index + 7) % maxInt(*numFiles, 1))
	linkB := noteName((index + 13) % maxInt(*numFiles, 1))
	linkC := noteName((index + 29) % maxInt(*numFiles, 1))

	content := fmt.Sprintf(noteTemplate,
		noun, tagA, tagB, (index%28)+1,
		noun,
		noun, domain, adj, linkA, linkB,
		domain, linkC, adj,
		noun, adj,
		noun, linkA, randomWord(sections),
	)

	filename := filepath.Join(*outputDir, fmt.Sprintf("%s.md", noteName(index)))
	return os.WriteFile(filename, []byte(content), 0644)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

package aggregate

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// renderUnit produces the provisional section for one unit. The heading
// here is the collision-unaware base title; resolveSections assigns the
// final heading and anchor once the full render order is known.
func renderUnit(unit FileUnit, content loaded, meta *Metadata) RenderedSection {
	return RenderedSection{
		Heading: headingFor(unit.RelPath),
		Meta:    meta,
		Body:    renderBody(content.Text, unit.lang),
		Source:  unit.RelPath,
		Index:   unit.Index,
	}
}

// headingFor derives the display heading from a unit path: base name
// without extension, underscores and hyphens turned into spaces.
func headingFor(rel string) string {
	base := path.Base(rel)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" {
		stem = base
	}
	stem = strings.ReplaceAll(stem, "_", " ")
	stem = strings.ReplaceAll(stem, "-", " ")
	return strings.TrimSpace(stem)
}

// renderBody wraps code and data content in a fenced block so Markdown
// renderers do not reinterpret it. Prose categories pass through
// verbatim.
func renderBody(text string, lang *language) string {
	if lang == nil || lang.prose() {
		return text
	}

	fence := backtickFence(text)
	var b strings.Builder
	b.Grow(len(text) + 2*len(fence) + len(lang.Fence) + 2)
	b.WriteString(fence)
	b.WriteString(lang.Fence)
	b.WriteByte('\n')
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(fence)
	return b.String()
}

// backtickFence returns a fence longer than any backtick run inside the
// content, so embedded code blocks cannot terminate the section early.
func backtickFence(text string) string {
	longest, run := 0, 0
	for _, r := range text {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}

// resolveSections orders sections by discovery index and resolves
// heading and anchor collisions in a single pass, keeping the two in
// lock-step no matter how rendering was parallelized. The returned TOC
// lists entries in exactly the order the sections will appear.
func resolveSections(sections []RenderedSection) ([]RenderedSection, TableOfContents) {
	sort.Slice(sections, func(i, j int) bool {
		return sections[i].Index < sections[j].Index
	})

	seenHeadings := make(map[string]bool, len(sections))
	seenAnchors := make(map[string]bool, len(sections))
	var toc TableOfContents

	for i := range sections {
		heading := uniqueHeading(sections[i].Heading, parentDir(sections[i].Source), seenHeadings)
		anchor := uniqueAnchor(slugify(heading), seenAnchors)
		seenHeadings[heading] = true
		seenAnchors[anchor] = true

		sections[i].Heading = heading
		sections[i].Anchor = anchor
		toc.Entries = append(toc.Entries, TOCEntry{Heading: heading, Anchor: anchor})
	}
	return sections, toc
}

func parentDir(rel string) string {
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return ""
	}
	return path.Base(dir)
}

// uniqueHeading disambiguates a duplicate heading with the unit's
// parent directory name, then a numeric suffix.
func uniqueHeading(base, parent string, seen map[string]bool) string {
	if !seen[base] {
		return base
	}
	if parent != "" {
		qualified := base + " (" + parent + ")"
		if !seen[qualified] {
			return qualified
		}
	}
	for n := 2; ; n++ {
		qualified := fmt.Sprintf("%s (%d)", base, n)
		if !seen[qualified] {
			return qualified
		}
	}
}

func uniqueAnchor(slug string, seen map[string]bool) string {
	if !seen[slug] {
		return slug
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", slug, n)
		if !seen[candidate] {
			return candidate
		}
	}
}

// slugify converts a heading to its anchor: lowercase, spaces to
// hyphens, ASCII punctuation stripped. Non-ASCII letters survive, the
// way common Markdown renderers slug them.
func slugify(heading string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(heading) {
		switch {
		case r == ' ':
			b.WriteByte('-')
		case r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r > 127:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "section"
	}
	return b.String()
}

// Package edgar pulls the Management's Discussion and Analysis section
// (Item 7) out of EDGAR 10-K filings so it can be fed to a model.
package edgar

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/daryltucker/llm-pipeline/internal/output"
	"golang.org/x/net/html"
)

// MinSectionLength is the size below which an extracted section is
// suspicious (usually a table-of-contents hit).
const MinSectionLength = 500

var (
	whitespace = regexp.MustCompile(`\s+`)
	item7Start = regexp.MustCompile(`(?i)\bITEM\s+7\b`)
	item7End   = regexp.MustCompile(`(?i)\bITEM\s+7A\b|\bITEM\s+8\b`)
)

// ErrNoText is returned when a document has no visible text.
var ErrNoText = errors.New("no text in document")

// HTMLToText returns the visible text of an HTML document, text nodes
// joined with single spaces. Script and style content is dropped.
func HTMLToText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

// ExtractMDA finds the text between the first "Item 7" heading and the
// following "Item 7A" or "Item 8" heading. Whitespace is collapsed first.
func ExtractMDA(text string) (string, bool) {
	clean := whitespace.ReplaceAllString(text, " ")

	start := item7Start.FindStringIndex(clean)
	if start == nil {
		return "", false
	}
	end := item7End.FindStringIndex(clean[start[1]:])
	if end == nil {
		return "", false
	}

	section := strings.TrimSpace(clean[start[0] : start[1]+end[0]])
	if len(section) < MinSectionLength {
		output.Logger.Warn("Extracted MD&A is unusually short", "chars", len(section))
	}
	return section, true
}

// ExtractFile reads an HTML filing and extracts its MD&A section.
func ExtractFile(path string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	text, err := HTMLToText(f)
	if err != nil {
		return "", false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	section, ok := ExtractMDA(text)
	return section, ok, nil
}

package atlassian

import (
	"strings"

	"github.com/tidwall/gjson"
)

// TextToADF wraps plain text in an Atlassian Document Format document. Blank
// lines separate paragraphs.
func TextToADF(text string) map[string]any {
	var paragraphs []any
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if strings.TrimSpace(block) == "" {
			continue
		}
		paragraphs = append(paragraphs, map[string]any{
			"type":    "paragraph",
			"content": []any{map[string]any{"type": "text", "text": block}},
		})
	}
	if len(paragraphs) == 0 {
		paragraphs = []any{map[string]any{"type": "paragraph", "content": []any{}}}
	}
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": paragraphs,
	}
}

// ADFToText flattens an ADF node to its text. Plain strings, as returned by
// the v2 API, pass through unchanged.
func ADFToText(node gjson.Result) string {
	switch {
	case !node.Exists() || node.Type == gjson.Null:
		return ""
	case node.Type == gjson.String:
		return node.String()
	case !node.IsObject():
		return ""
	}
	var sb strings.Builder
	extractText(node, &sb)
	return strings.TrimRight(sb.String(), "\n")
}

func extractText(node gjson.Result, sb *strings.Builder) {
	switch node.Get("type").String() {
	case "text":
		sb.WriteString(node.Get("text").String())
		return
	case "hardBreak":
		sb.WriteString("\n")
		return
	case "mention":
		sb.WriteString(node.Get("attrs.text").String())
		return
	}
	for _, child := range node.Get("content").Array() {
		if child.IsObject() {
			extractText(child, sb)
		}
	}
	switch node.Get("type").String() {
	case "paragraph", "heading", "codeBlock", "blockquote":
		sb.WriteString("\n")
	}
}

// Package examples renders the built-in usage guide on the terminal.
package examples

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

//go:embed examples.md
var source []byte

// Render parses the embedded guide and writes a terminal-friendly rendition
// to out. Headings are emphasized, code fences are indented, prose is
// reflowed one paragraph per block.
func Render(out io.Writer) error {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	heading := color.New(color.FgCyan, color.Bold)
	return ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			title := string(nodeText(node, source))
			if node.Level == 1 {
				heading.Fprintln(out, strings.ToUpper(title))
			} else {
				fmt.Fprintln(out)
				heading.Fprintln(out, title)
			}
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock:
			fmt.Fprintln(out)
			for i := 0; i < node.Lines().Len(); i++ {
				line := node.Lines().At(i)
				fmt.Fprintf(out, "    %s", line.Value(source))
			}
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph:
			fmt.Fprintln(out)
			fmt.Fprintln(out, string(nodeText(node, source)))
			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})
}

// nodeText flattens the inline content of a block node into plain text.
func nodeText(n ast.Node, source []byte) []byte {
	var b strings.Builder
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch c := child.(type) {
		case *ast.Text:
			b.Write(c.Segment.Value(source))
			if c.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.CodeSpan:
			b.Write(nodeText(c, source))
		default:
			b.Write(nodeText(c, source))
		}
	}
	return []byte(b.String())
}

package render

import (
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// markdownParser is configured once; Parse creates per-call state.
var markdownParser = goldmark.New(goldmark.WithExtensions(extension.Strikethrough)).Parser()

// EscapeText escapes every MarkdownV2 reserved character in s, including
// backslashes.
func EscapeText(s string) string {
	return bot.EscapeMarkdown(strings.ReplaceAll(s, `\`, `\\`))
}

// MarkdownToChat converts Markdown into Telegram MarkdownV2. Headings become
// bold lines and lists become bullet lines; other block structure collapses
// into paragraphs.
func MarkdownToChat(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}

	source := []byte(src)
	document := markdownParser.Parse(text.NewReader(source))

	c := &chatRenderer{source: source, open: make(map[string]int)}
	_ = ast.Walk(document, c.walk)

	return strings.TrimRight(c.out.String(), "\n")
}

type chatList struct {
	ordered bool
	counter int
}

// chatRenderer walks the AST writing MarkdownV2 directly. Every text run is
// escaped before any markup is added around it. open counts entities per
// marker; MarkdownV2 cannot nest an entity inside itself, so only the
// outermost one is written.
type chatRenderer struct {
	source []byte
	out    strings.Builder
	lists  []chatList
	open   map[string]int
}

func (c *chatRenderer) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := node.(type) {
	case *ast.Document:

	case *ast.Heading:
		c.mark("*", entering)
		if !entering {
			c.out.WriteString("\n\n")
		}

	case *ast.Paragraph:
		if !entering {
			c.endBlock()
		}

	case *ast.TextBlock:
		if !entering {
			c.out.WriteString("\n")
		}

	case *ast.List:
		if entering {
			c.lists = append(c.lists, chatList{ordered: n.IsOrdered(), counter: n.Start})
		} else {
			c.lists = c.lists[:len(c.lists)-1]
			if len(c.lists) == 0 {
				c.out.WriteString("\n")
			}
		}

	case *ast.ListItem:
		if entering {
			c.out.WriteString(c.bullet())
		}

	case *ast.Emphasis:
		marker := "_"
		if n.Level >= 2 {
			marker = "*"
		}
		c.mark(marker, entering)

	case *extast.Strikethrough:
		c.mark("~", entering)

	case *ast.Text:
		if entering {
			value := n.Segment.Value(c.source)
			if !n.IsRaw() {
				value = util.UnescapePunctuations(value)
			}
			c.out.WriteString(EscapeText(string(value)))
			if n.SoftLineBreak() || n.HardLineBreak() {
				c.out.WriteString("\n")
			}
		}

	case *ast.String:
		if entering {
			c.out.WriteString(EscapeText(string(n.Value)))
		}

	case *ast.CodeSpan:
		if entering {
			c.out.WriteString("`" + escapeCode(c.inlineText(n)) + "`")
			return ast.WalkSkipChildren, nil
		}

	case *ast.FencedCodeBlock:
		if entering {
			c.writeCodeBlock(n.Lines())
			return ast.WalkSkipChildren, nil
		}

	case *ast.CodeBlock:
		if entering {
			c.writeCodeBlock(n.Lines())
			return ast.WalkSkipChildren, nil
		}

	case *ast.Link:
		if entering {
			c.out.WriteString("[")
		} else {
			c.out.WriteString("](" + escapeURL(string(n.Destination)) + ")")
		}

	case *ast.Image:
		if entering {
			c.out.WriteString("[")
		} else {
			c.out.WriteString("](" + escapeURL(string(n.Destination)) + ")")
		}

	case *ast.AutoLink:
		if entering {
			url := string(n.URL(c.source))
			c.out.WriteString("[" + EscapeText(string(n.Label(c.source))) + "](" + escapeURL(url) + ")")
		}

	case *ast.RawHTML:
		if entering {
			for i := 0; i < n.Segments.Len(); i++ {
				segment := n.Segments.At(i)
				c.out.WriteString(EscapeText(string(segment.Value(c.source))))
			}
		}

	case *ast.HTMLBlock:
		if entering {
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				segment := lines.At(i)
				c.out.WriteString(EscapeText(string(segment.Value(c.source))))
			}
			c.endBlock()
			return ast.WalkSkipChildren, nil
		}

	case *ast.ThematicBreak:
		if entering {
			c.out.WriteString(EscapeText("———") + "\n\n")
		}
	}

	return ast.WalkContinue, nil
}

// mark writes marker when the first entity of its kind opens or the last one
// closes.
func (c *chatRenderer) mark(marker string, entering bool) {
	if entering {
		if c.open[marker] == 0 {
			c.out.WriteString(marker)
		}
		c.open[marker]++
		return
	}
	c.open[marker]--
	if c.open[marker] == 0 {
		c.out.WriteString(marker)
	}
}

func (c *chatRenderer) endBlock() {
	if len(c.lists) > 0 {
		c.out.WriteString("\n")
		return
	}
	c.out.WriteString("\n\n")
}

func (c *chatRenderer) bullet() string {
	depth := len(c.lists)
	if depth == 0 {
		return ""
	}
	indent := strings.Repeat("  ", depth-1)

	top := &c.lists[depth-1]
	if !top.ordered {
		return indent + "• "
	}
	marker := strconv.Itoa(top.counter) + `\. `
	top.counter++
	return indent + marker
}

func (c *chatRenderer) inlineText(node ast.Node) string {
	var b strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch t := child.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(c.source))
		case *ast.String:
			b.Write(t.Value)
		}
	}
	return b.String()
}

func (c *chatRenderer) writeCodeBlock(lines *text.Segments) {
	var code strings.Builder
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		code.Write(segment.Value(c.source))
	}
	c.out.WriteString("```\n" + escapeCode(strings.TrimRight(code.String(), "\n")) + "\n```")
	c.endBlock()
}

// escapeCode escapes the two characters that are reserved inside code.
func escapeCode(s string) string {
	return strings.NewReplacer(`\`, `\\`, "`", "\\`").Replace(s)
}

// escapeURL escapes the two characters that are reserved inside a link target.
func escapeURL(s string) string {
	return strings.NewReplacer(`\`, `\\`, ")", `\)`).Replace(s)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"html"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// highlightPriority places the highlighter ahead of goldmark's HTML renderer.
const highlightPriority = 200

// codeHighlighter renders fenced code blocks with chroma, using inline
// styles so the exported page needs no stylesheet.
type codeHighlighter struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

func newCodeHighlighter(styleName string) *codeHighlighter {
	style := chromaStyles.Get(styleName)
	if style == nil {
		style = chromaStyles.Fallback
	}
	return &codeHighlighter{
		style:     style,
		formatter: chromahtml.New(chromahtml.WithClasses(false), chromahtml.TabWidth(4)),
	}
}

// option returns the goldmark renderer option that installs h.
func (h *codeHighlighter) option() renderer.Option {
	return renderer.WithNodeRenderers(util.Prioritized(h, highlightPriority))
}

// RegisterFuncs implements renderer.NodeRenderer.
func (h *codeHighlighter) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, h.renderFencedCode)
}

func (h *codeHighlighter) renderFencedCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)

	var code bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}

	lexer := lexers.Get(string(n.Language(source)))
	if lexer == nil {
		lexer = lexers.Analyse(code.String())
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}

	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, code.String())
	if err == nil {
		err = h.formatter.Format(w, h.style, iterator)
	}
	if err != nil {
		// Unhighlighted, still escaped.
		w.WriteString("<pre><code>")
		w.WriteString(html.EscapeString(code.String()))
		w.WriteString("</code></pre>\n")
	}
	return ast.WalkSkipChildren, nil
}

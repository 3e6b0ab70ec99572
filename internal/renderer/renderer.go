// Package renderer converts Markdown source into the HTML fragment shown
// inside the viewer page.
//
// The conversion pipeline is fixed when the Renderer is built: GitHub
// flavoured Markdown (tables, strikethrough, autolinks, task lists), inline
// HTML passthrough, emoji shortcodes and slug anchors on headings. Rendering
// never fails; input the parser cannot make sense of is shown as text.
package renderer

import (
	"bytes"
	"html"
	"sync"

	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmrenderer "github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/text/unicode/norm"
)

// Renderer turns Markdown into HTML. It is safe for concurrent use.
type Renderer struct {
	md      goldmark.Markdown
	bufPool sync.Pool
}

type options struct {
	unsafeHTML   bool
	emoji        bool
	emojiMethod  emoji.RenderingMethod
	headingIDs   bool
	hardWraps    bool
	extraExtends []goldmark.Extender
}

// Option customises a Renderer at construction time.
type Option func(*options)

// WithoutRawHTML escapes inline HTML instead of passing it through.
func WithoutRawHTML() Option {
	return func(o *options) { o.unsafeHTML = false }
}

// WithoutEmoji leaves :shortcode: text untouched.
func WithoutEmoji() Option {
	return func(o *options) { o.emoji = false }
}

// WithEmojiEntities renders emoji as numeric HTML entities rather than raw
// unicode characters.
func WithEmojiEntities() Option {
	return func(o *options) { o.emojiMethod = emoji.Entity }
}

// WithHardWraps renders single newlines inside a paragraph as <br>.
func WithHardWraps() Option {
	return func(o *options) { o.hardWraps = true }
}

// WithExtensions appends additional goldmark extensions to the pipeline.
func WithExtensions(exts ...goldmark.Extender) Option {
	return func(o *options) { o.extraExtends = append(o.extraExtends, exts...) }
}

// New builds a Renderer. The configuration cannot change afterwards.
func New(opts ...Option) *Renderer {
	o := options{
		unsafeHTML:  true,
		emoji:       true,
		emojiMethod: emoji.Unicode,
		headingIDs:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	exts := []goldmark.Extender{extension.GFM}
	if o.emoji {
		exts = append(exts, emoji.New(emoji.WithRenderingMethod(o.emojiMethod)))
	}
	exts = append(exts, o.extraExtends...)

	var parserOpts []parser.Option
	if o.headingIDs {
		parserOpts = append(parserOpts, parser.WithAutoHeadingID())
	}

	var rendererOpts []goldmark.Option
	var htmlOpts []gmrenderer.Option
	if o.unsafeHTML {
		htmlOpts = append(htmlOpts, gmhtml.WithUnsafe())
	}
	if o.hardWraps {
		htmlOpts = append(htmlOpts, gmhtml.WithHardWraps())
	}
	rendererOpts = append(rendererOpts,
		goldmark.WithExtensions(exts...),
		goldmark.WithParserOptions(parserOpts...),
		goldmark.WithRendererOptions(htmlOpts...),
	)

	return &Renderer{
		md: goldmark.New(rendererOpts...),
		bufPool: sync.Pool{
			New: func() interface{} { return new(bytes.Buffer) },
		},
	}
}

// Render converts text to an HTML fragment. Text is normalised to NFC first
// so that visually identical headings produce identical anchors. A failing or
// panicking extension degrades to the escaped source.
func (r *Renderer) Render(text string) (out string) {
	defer func() {
		if recover() != nil {
			out = fallback(text)
		}
	}()

	source := []byte(norm.NFC.String(text))

	buf := r.bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer r.bufPool.Put(buf)

	if err := r.md.Convert(source, buf); err != nil {
		return fallback(text)
	}
	return buf.String()
}

// fallback shows the raw source when conversion fails.
func fallback(text string) string {
	return "<pre>" + html.EscapeString(text) + "</pre>\n"
}

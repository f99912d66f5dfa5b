// internal/escpos/builder.go
package escpos

import (
	"bytes"
	"strings"

	"pos-device-service/internal/driver/wire"
)

// Builder accumulates an ESC/POS byte stream. Text is encoded with the
// selected code page.
type Builder struct {
	buf      bytes.Buffer
	codePage wire.CodePage
	width    int
}

// NewBuilder creates a builder for a paper width in characters
func NewBuilder(width int, codePage wire.CodePage) *Builder {
	return &Builder{codePage: codePage, width: width}
}

// Width returns the paper width in characters
func (b *Builder) Width() int { return b.width }

// Raw appends raw command bytes
func (b *Builder) Raw(cmd ...[]byte) *Builder {
	for _, c := range cmd {
		b.buf.Write(c)
	}
	return b
}

// Init resets the printer and selects the code page
func (b *Builder) Init() *Builder {
	b.Raw(Commands.Initialize)
	b.Raw(Commands.SelectCharset, []byte{b.codePage.Table})
	return b
}

// Text appends encoded text
func (b *Builder) Text(s string) *Builder {
	b.buf.Write(b.codePage.Encode(s))
	return b
}

// Line appends encoded text and a line feed
func (b *Builder) Line(s string) *Builder {
	return b.Text(s).Raw(Commands.LineFeed)
}

// Columns appends left and right text padded to the full width
func (b *Builder) Columns(left, right string) *Builder {
	return b.Line(Columns(left, right, b.width))
}

// Rule appends a full-width separator
func (b *Builder) Rule(ch string) *Builder {
	return b.Line(strings.Repeat(ch, b.width))
}

// Feed advances n lines
func (b *Builder) Feed(n byte) *Builder {
	return b.Raw(Commands.FeedLines, []byte{n})
}

// Cut performs a partial cut
func (b *Builder) Cut() *Builder {
	return b.Raw(Commands.CutPartial)
}

// Bytes returns the accumulated stream
func (b *Builder) Bytes() []byte {
	return b.buf.Bytes()
}

// Columns right-aligns right against left within width characters.
// The left text is truncated when both do not fit.
func Columns(left, right string, width int) string {
	leftRunes := []rune(left)
	rightLen := len([]rune(right))
	maxLeft := width - rightLen - 1
	if maxLeft < 1 {
		maxLeft = 1
	}
	if len(leftRunes) > maxLeft {
		if maxLeft > 3 {
			leftRunes = append(leftRunes[:maxLeft-3], []rune("...")...)
		} else {
			leftRunes = leftRunes[:maxLeft]
		}
	}
	spaces := width - len(leftRunes) - rightLen
	if spaces < 1 {
		spaces = 1
	}
	return string(leftRunes) + strings.Repeat(" ", spaces) + right
}

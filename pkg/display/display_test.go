package display

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderBox(t *testing.T) {
	result := RenderBox("Deploying stack: [demo] to environment: [dev]", Yellow)
	stripped := stripAnsi(result)

	lines := strings.Split(stripped, "\n")
	assert.Len(t, lines, 3, "box should have top border, content, bottom border")
	assert.True(t, strings.HasPrefix(lines[0], "┌"), "top left corner")
	assert.True(t, strings.HasSuffix(lines[0], "┐"), "top right corner")
	assert.Contains(t, lines[1], "Deploying stack: [demo] to environment: [dev]")
	assert.True(t, strings.HasPrefix(lines[2], "└"), "bottom left corner")
	assert.True(t, strings.HasSuffix(lines[2], "┘"), "bottom right corner")
}

func TestRenderBoxMultiline(t *testing.T) {
	result := RenderBox("first\nsecond line", Blue)
	stripped := stripAnsi(result)

	lines := strings.Split(stripped, "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[1], "first")
	assert.Contains(t, lines[2], "second line")
}

// stripAnsi removes ANSI escape sequences for content assertions.
func stripAnsi(s string) string {
	var result strings.Builder
	inEscape := false
	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if s[i] == 'm' {
				inEscape = false
			}
			continue
		}
		result.WriteByte(s[i])
	}
	return result.String()
}

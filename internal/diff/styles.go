package diff

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	deletionColorConstant  = "197"
	insertionColorConstant = "78"
	contextColorFaint      = true
)

var (
	deletionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(deletionColorConstant))
	insertionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(insertionColorConstant))
	contextStyle   = lipgloss.NewStyle().Faint(contextColorFaint)
)

// Renderer formats annotated diff lines for terminal display. Styling is a
// presentation concern layered on top of the tag, numbering, and content
// contract; it never alters any of them.
type Renderer struct {
	styled bool
}

// NewRenderer constructs a Renderer. When styled is false the output is
// byte-identical to FormatPlain.
func NewRenderer(styled bool) Renderer {
	return Renderer{styled: styled}
}

// Format renders the annotated lines into displayable text.
func (renderer Renderer) Format(renderedLines []Line) string {
	plainText := FormatPlain(renderedLines)
	if !renderer.styled {
		return plainText
	}

	var outputBuilder strings.Builder
	plainLines := SplitLines(plainText)
	for plainIndex, plainLine := range plainLines {
		outputBuilder.WriteString(styleForKind(renderedLines[plainIndex].Kind).Render(plainLine))
		outputBuilder.WriteString(lineTerminatorConstant)
	}
	return outputBuilder.String()
}

// RenderText validates the buffer, renders the diff, and formats it in one call.
func (renderer Renderer) RenderText(originalText string, updatedText string, contextBuffer int) (string, error) {
	renderedLines, renderError := Render(originalText, updatedText, contextBuffer)
	if renderError != nil {
		return "", renderError
	}
	return renderer.Format(renderedLines), nil
}

func styleForKind(lineKind LineKind) lipgloss.Style {
	switch lineKind {
	case LineKindDeletion:
		return deletionStyle
	case LineKindInsertion:
		return insertionStyle
	default:
		return contextStyle
	}
}

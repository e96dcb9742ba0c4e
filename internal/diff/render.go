package diff

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	minimumContextBufferConstant           = 1
	maximumContextBufferConstant           = 3
	lineNumberWidthConstant                = 4
	deletionSignConstant                   = '-'
	insertionSignConstant                  = '+'
	contextSignConstant                    = ' '
	renderedLineTemplateConstant           = "%*d %c %s"
	lineTerminatorConstant                 = "\n"
	contextBufferOutOfRangeMessageConstant = "context buffer must be between 1 and 3"
)

// ErrContextBufferOutOfRange indicates the requested context buffer falls outside the supported 1..3 range.
var ErrContextBufferOutOfRange = errors.New(contextBufferOutOfRangeMessageConstant)

// LineKind tags one rendered diff line.
type LineKind string

// Rendered line kinds.
const (
	LineKindDeletion  LineKind = LineKind("deletion")
	LineKindInsertion LineKind = LineKind("insertion")
	LineKindContext   LineKind = LineKind("context")
)

// Line is one annotated output line of a rendered diff. Number is 1-based
// and refers to the original text for deletions and context, and to the
// updated text for insertions.
type Line struct {
	Kind    LineKind
	Number  int
	Content string
}

// ValidateContextBuffer reports whether the requested context buffer falls
// inside the supported 1..3 range.
func ValidateContextBuffer(contextBuffer int) error {
	if contextBuffer < minimumContextBufferConstant || contextBuffer > maximumContextBufferConstant {
		return ErrContextBufferOutOfRange
	}
	return nil
}

// Render computes the annotated line diff between the original and updated
// texts, grouping changes into hunks separated by at most contextBuffer
// unchanged lines on each side. An empty updated text renders every original
// line as a deletion numbered from 1, regardless of the buffer.
func Render(originalText string, updatedText string, contextBuffer int) ([]Line, error) {
	if validationError := ValidateContextBuffer(contextBuffer); validationError != nil {
		return nil, validationError
	}

	if len(updatedText) == 0 {
		return renderFullDeletion(originalText), nil
	}

	originalLines := SplitLines(originalText)
	updatedLines := SplitLines(updatedText)

	var renderedLines []Line
	sequenceMatcher := difflib.NewMatcher(originalLines, updatedLines)
	for _, opcodeGroup := range sequenceMatcher.GetGroupedOpCodes(contextBuffer) {
		for _, opcode := range opcodeGroup {
			switch opcode.Tag {
			case 'e':
				for originalIndex := opcode.I1; originalIndex < opcode.I2; originalIndex++ {
					renderedLines = append(renderedLines, Line{Kind: LineKindContext, Number: originalIndex + 1, Content: originalLines[originalIndex]})
				}
			case 'd':
				renderedLines = append(renderedLines, deletionLines(originalLines, opcode.I1, opcode.I2)...)
			case 'i':
				renderedLines = append(renderedLines, insertionLines(updatedLines, opcode.J1, opcode.J2)...)
			case 'r':
				renderedLines = append(renderedLines, deletionLines(originalLines, opcode.I1, opcode.I2)...)
				renderedLines = append(renderedLines, insertionLines(updatedLines, opcode.J1, opcode.J2)...)
			}
		}
	}

	return renderedLines, nil
}

func renderFullDeletion(originalText string) []Line {
	originalLines := SplitLines(originalText)
	renderedLines := make([]Line, 0, len(originalLines))
	for originalIndex, originalLine := range originalLines {
		renderedLines = append(renderedLines, Line{Kind: LineKindDeletion, Number: originalIndex + 1, Content: originalLine})
	}
	return renderedLines
}

func deletionLines(originalLines []string, startIndex int, endIndex int) []Line {
	collected := make([]Line, 0, endIndex-startIndex)
	for originalIndex := startIndex; originalIndex < endIndex; originalIndex++ {
		collected = append(collected, Line{Kind: LineKindDeletion, Number: originalIndex + 1, Content: originalLines[originalIndex]})
	}
	return collected
}

func insertionLines(updatedLines []string, startIndex int, endIndex int) []Line {
	collected := make([]Line, 0, endIndex-startIndex)
	for updatedIndex := startIndex; updatedIndex < endIndex; updatedIndex++ {
		collected = append(collected, Line{Kind: LineKindInsertion, Number: updatedIndex + 1, Content: updatedLines[updatedIndex]})
	}
	return collected
}

// SplitLines separates text into lines without retaining terminators. Empty
// text yields no lines, so a file addition diffs against zero lines rather
// than one empty line.
func SplitLines(text string) []string {
	if len(text) == 0 {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, lineTerminatorConstant), lineTerminatorConstant)
}

func signForKind(lineKind LineKind) byte {
	switch lineKind {
	case LineKindDeletion:
		return deletionSignConstant
	case LineKindInsertion:
		return insertionSignConstant
	default:
		return contextSignConstant
	}
}

// FormatPlain renders annotated lines without styling: a fixed-width 1-based
// line number, a sign character, and the line content.
func FormatPlain(renderedLines []Line) string {
	var outputBuilder strings.Builder
	for _, renderedLine := range renderedLines {
		outputBuilder.WriteString(fmt.Sprintf(renderedLineTemplateConstant, lineNumberWidthConstant, renderedLine.Number, signForKind(renderedLine.Kind), renderedLine.Content))
		outputBuilder.WriteString(lineTerminatorConstant)
	}
	return outputBuilder.String()
}

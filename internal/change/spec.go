package change

import (
	"regexp"
	"strings"
)

const (
	lineTerminatorConstant       = "\n"
	specKindDeleteNameConstant   = "delete"
	specKindAddNameConstant      = "add"
	specKindSubNameConstant      = "sub"
	specKindRegexNameConstant    = "regex"
	specKindUnknownNameConstant  = "unknown"
	emptyReplacementTextConstant = ""
)

// Kind identifies one of the supported transformation variants.
type Kind int

// Supported transformation variants.
const (
	KindDelete Kind = iota
	KindAdd
	KindSub
	KindRegex
)

// String returns the canonical name of the transformation variant.
func (kind Kind) String() string {
	switch kind {
	case KindDelete:
		return specKindDeleteNameConstant
	case KindAdd:
		return specKindAddNameConstant
	case KindSub:
		return specKindSubNameConstant
	case KindRegex:
		return specKindRegexNameConstant
	default:
		return specKindUnknownNameConstant
	}
}

// Spec describes a single uniform file transformation applied across a fleet.
// A Spec is a closed variant: exactly one Kind is set, and only the fields
// relevant to that Kind carry meaning.
type Spec struct {
	Kind        Kind
	Path        string
	Content     string
	Pattern     string
	Replacement string
}

// NewDeleteSpec builds a transformation removing every matched file.
func NewDeleteSpec() Spec {
	return Spec{Kind: KindDelete}
}

// NewAddSpec builds a transformation adding a new file with the given content.
func NewAddSpec(path string, content string) Spec {
	return Spec{Kind: KindAdd, Path: path, Content: content}
}

// NewSubSpec builds a literal substring replacement transformation.
func NewSubSpec(pattern string, replacement string) Spec {
	return Spec{Kind: KindSub, Pattern: pattern, Replacement: replacement}
}

// NewRegexSpec builds a regular-expression replacement transformation.
func NewRegexSpec(pattern string, replacement string) Spec {
	return Spec{Kind: KindRegex, Pattern: pattern, Replacement: replacement}
}

// FileOutcome captures the result of applying a Spec to one file's content.
// Changed reports whether the file requires any write at all; a false value
// is a soft skip for that file, never an error.
type FileOutcome struct {
	UpdatedContent string
	Changed        bool
	Remove         bool
}

// ApplyToContent computes the transformed content for a single file. An
// uncompilable regular expression, an absent pattern, and a replacement
// producing identical output all yield an unchanged outcome.
func (spec Spec) ApplyToContent(originalContent string) FileOutcome {
	switch spec.Kind {
	case KindDelete:
		return FileOutcome{UpdatedContent: emptyReplacementTextConstant, Changed: true, Remove: true}
	case KindAdd:
		updatedContent := ensureSingleTrailingTerminator(spec.Content)
		return FileOutcome{UpdatedContent: updatedContent, Changed: updatedContent != originalContent}
	case KindSub:
		if !strings.Contains(originalContent, spec.Pattern) {
			return FileOutcome{UpdatedContent: originalContent}
		}
		updatedContent := strings.ReplaceAll(originalContent, spec.Pattern, spec.Replacement)
		return FileOutcome{UpdatedContent: updatedContent, Changed: updatedContent != originalContent}
	case KindRegex:
		compiledPattern, compileError := regexp.Compile(spec.Pattern)
		if compileError != nil {
			return FileOutcome{UpdatedContent: originalContent}
		}
		updatedContent := compiledPattern.ReplaceAllString(originalContent, spec.Replacement)
		return FileOutcome{UpdatedContent: updatedContent, Changed: updatedContent != originalContent}
	default:
		return FileOutcome{UpdatedContent: originalContent}
	}
}

func ensureSingleTrailingTerminator(content string) string {
	trimmedContent := strings.TrimRight(content, lineTerminatorConstant)
	return trimmedContent + lineTerminatorConstant
}

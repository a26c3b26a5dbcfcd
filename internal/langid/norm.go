// Package langid decides whether a document's body text is predominantly
// Chinese by sampling rendered pages and asking a vision model.
package langid

import "strings"

// Label is a normalized model verdict for one page.
type Label int

const (
	LabelUnknown Label = iota
	LabelChinese
	LabelNonChinese
)

func (l Label) String() string {
	switch l {
	case LabelChinese:
		return "chinese"
	case LabelNonChinese:
		return "non-chinese"
	default:
		return "unknown"
	}
}

// ContainsCJK reports whether s contains any CJK ideograph.
func ContainsCJK(s string) bool {
	for _, r := range s {
		switch {
		case r >= 0x3400 && r <= 0x4DBF:
			return true
		case r >= 0x4E00 && r <= 0x9FFF:
			return true
		case r >= 0xF900 && r <= 0xFAFF:
			return true
		}
	}
	return false
}

// Normalize maps a free-form model answer onto a Label. Negated forms are
// checked first so "non-chinese" never matches as "chinese"; an answer that
// names neither language is classified by whether it contains CJK text.
func Normalize(answer string) Label {
	s := strings.ToLower(strings.TrimSpace(answer))
	if s == "" {
		return LabelUnknown
	}

	for _, neg := range []string{"non-chinese", "non chinese", "not chinese", "非中文", "english", "英文"} {
		if strings.Contains(s, neg) {
			return LabelNonChinese
		}
	}
	for _, pos := range []string{"chinese", "中文"} {
		if strings.Contains(s, pos) {
			return LabelChinese
		}
	}
	if ContainsCJK(s) {
		return LabelChinese
	}
	return LabelNonChinese
}

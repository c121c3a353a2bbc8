// Package annotation implements the content-addressed annotation overlay that
// lets clinician notes survive regeneration of AI-authored report text.
package annotation

import (
	"fmt"
	"strings"
)

// DeriveKey maps a structural text block to a stable string key: the block's
// own literal text, trimmed of whitespace and leading markdown structure.
// Position in the document never contributes, so a regenerated report that
// reuses a paragraph verbatim resolves the same annotations. Two identical
// blocks intentionally collide; both get the same annotation.
//
// An empty block cannot be looked up meaningfully, so it falls back to a
// synthetic key derived from the document offset. That fallback is a known
// edge case, not something to silently repair.
func DeriveKey(text string, offset int) string {
	key := strings.TrimSpace(text)
	key = strings.TrimLeft(key, "#*->+ \t")
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Sprintf("block@%d", offset)
	}
	return key
}

package metadata

import (
	"strings"
	"unicode"
)

// Fallback is the identifier used when a contributor leaves the name empty.
const Fallback = "guest"

// Separator replaces each run of whitespace or reserved characters in an identifier.
const Separator = "_"

// reserved characters would change the meaning of a folder path or a tag list.
const reserved = `/\,|&=?#%"'<>`

// SafeIdentifier derives the folder suffix and tag for a contributor name: the trimmed name with
// every run of whitespace or reserved characters collapsed into Separator, or Fallback when
// nothing is left. Folder and tag must both come from this function.
func SafeIdentifier(name string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune(reserved, r) {
			pending = true
			continue
		}
		if pending && b.Len() > 0 {
			b.WriteString(Separator)
		}
		pending = false
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return Fallback
	}
	return b.String()
}

// Folder joins prefix and the contributor identifier into a storage folder.
func Folder(prefix, name string) string {
	id := SafeIdentifier(name)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return id
	}
	return prefix + "/" + id
}

// Tag returns the categorization tag for a contributor.
func Tag(name string) string {
	return SafeIdentifier(name)
}

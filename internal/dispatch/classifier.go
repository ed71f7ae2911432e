package dispatch

import "strings"

// Category is a spawn kind announced in a trigger message.
type Category string

// CategoryNone is returned when no vocabulary label appears in the text.
const CategoryNone Category = "none"

// Vocabulary is the fixed, ordered set of category labels. Order is the
// tie-break: when several labels occur in a message, the one listed first
// here wins, not the one appearing first in the text.
var Vocabulary = []Category{
	"Fine", "Nice", "Good", "Rare", "Wild", "Baby", "Epic", "Sus",
	"Brave", "Rickroll", "Reverse", "Superior", "Trash", "Legendary",
	"Mythic", "8bit", "Corrupt", "Professor", "Divine", "Real",
	"Ultimate", "eGirl",
}

// Classify returns the first label of vocab whose lowercase form is a
// substring of the lowercased text, or CategoryNone. This is plain substring
// scanning: "Real" matches inside "really".
func Classify(text string, vocab []Category) Category {
	lower := strings.ToLower(text)
	for _, c := range vocab {
		if strings.Contains(lower, strings.ToLower(string(c))) {
			return c
		}
	}
	return CategoryNone
}

// LookupCategory finds a vocabulary label case-insensitively.
func LookupCategory(name string, vocab []Category) (Category, bool) {
	for _, c := range vocab {
		if strings.EqualFold(string(c), name) {
			return c, true
		}
	}
	return "", false
}

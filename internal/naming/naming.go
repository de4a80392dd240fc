// Package naming derives column, table and key names from Go identifiers.
package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Words splits a Go identifier into lower-cased words. An acronym stays
// one word until the rune before a lower-case letter: "HTTPServer" is
// ["http", "server"].
func Words(ident string) []string {
	runes := []rune(ident)
	if len(runes) == 0 {
		return nil
	}
	var words []string
	start := 0
	for i := 1; i < len(runes); i++ {
		if wordStart(runes, i) {
			words = append(words, strings.ToLower(string(runes[start:i])))
			start = i
		}
	}
	return append(words, strings.ToLower(string(runes[start:])))
}

func wordStart(runes []rune, i int) bool {
	if !unicode.IsUpper(runes[i]) {
		return false
	}
	prev := runes[i-1]
	if unicode.IsLower(prev) {
		return true
	}
	return unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
}

// CamelToSnake converts a CamelCase identifier to snake_case:
// "ID" → "id", "UserID" → "user_id", "CreatedAt" → "created_at".
func CamelToSnake(ident string) string {
	return strings.Join(Words(ident), "_")
}

// TableName is the plural snake_case table for a type name,
// "AlbumTrack" → "album_tracks".
func TableName(typeName string) string {
	return inflection.Plural(CamelToSnake(typeName))
}

// ForeignKey is the column holding a reference named by field,
// "Artist" → "artist_id".
func ForeignKey(field string) string {
	return CamelToSnake(field) + "_id"
}

package domain

import "unicode/utf8"

// Citation links a generated answer back to a source chunk.
type Citation struct {
	Index       int
	ChunkID     string
	DocumentID  string
	Filename    string
	Modality    Modality
	Score       float32
	PageNumber  int
	Timestamp   string
	TextPreview string
}

// Preview truncates text to at most limit runes.
func Preview(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}

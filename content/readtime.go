package content

import "strings"

// WordsPerMinute is the reading rate used by ReadingTime.
const WordsPerMinute = 200

// ReadingTime estimates minutes to read blocks: every whitespace-delimited
// token of each heading and body segment counts as a word, and any partial
// minute rounds up. No words means zero minutes.
func ReadingTime(blocks []Block) int {
	words := 0
	for _, b := range blocks {
		words += len(strings.Fields(b.Heading))
		for _, seg := range b.Body {
			words += len(strings.Fields(seg.Text))
		}
	}
	return (words + WordsPerMinute - 1) / WordsPerMinute
}

// ReadingTime estimates minutes to read the post's content.
func (p Post) ReadingTime() int {
	return ReadingTime(p.Content)
}

package ingest

import "strings"

// noPagesMarker is written by the scraper when a crawl returned nothing.
const noPagesMarker = "No pages could be crawled"

// SplitWords splits text into windows of size words, each starting
// size-overlap words after the previous one. The last window may be shorter.
func SplitWords(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 || size <= 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// ShouldSkip reports whether scraped text is too thin to be worth embedding.
func ShouldSkip(text string, minWords int) bool {
	if strings.Contains(text, noPagesMarker) {
		return true
	}
	return len(strings.Fields(text)) < minWords
}

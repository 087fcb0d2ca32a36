// Package language classifies job descriptions as English, German, mixed
// or unclear.
package language

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// Classes returned by Detect.
const (
	English = "en"
	German  = "de"
	Mixed   = "mixed"
	Unclear = "unclear"
)

// minLetters is the shortest paragraph worth classifying.
const minLetters = 40

var candidates = whatlanggo.Options{
	Whitelist: map[whatlanggo.Lang]bool{
		whatlanggo.Eng: true,
		whatlanggo.Deu: true,
	},
}

// Detect classifies texts paragraph by paragraph. A text with reliable
// paragraphs in both languages is Mixed; one with none is Unclear.
func Detect(texts ...string) string {
	var en, de int
	for _, text := range texts {
		for _, para := range paragraphs(text) {
			info := whatlanggo.DetectWithOptions(para, candidates)
			if !info.IsReliable() {
				continue
			}
			switch info.Lang {
			case whatlanggo.Eng:
				en++
			case whatlanggo.Deu:
				de++
			}
		}
	}
	switch {
	case en > 0 && de > 0:
		return Mixed
	case en > 0:
		return English
	case de > 0:
		return German
	default:
		return Unclear
	}
}

// paragraphs splits text into lines, dropping those
// too short to classify.
func paragraphs(text string) []string {
	var out []string
	for _, block := range strings.Split(text, "\n") {
		block = strings.TrimSpace(block)
		if countLetters(block) >= minLetters {
			out = append(out, block)
		}
	}
	return out
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

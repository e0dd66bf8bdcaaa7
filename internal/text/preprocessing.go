// Package text prepares transcripts: stage tags are pulled out into the pose
// track and the remaining prose is normalized for speech synthesis.
package text

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxNumberForWords = 999999

const (
	numberRegexPattern      = `\b\d+\b`
	whitespaceRegexPattern  = `\s+`
	spaceBeforePunctPattern = `\s+([.,!?;:])`
)

// Preprocessor normalizes prose so the voice reads it naturally.
type Preprocessor struct {
	numberPattern        *regexp.Regexp
	whitespacePattern    *regexp.Regexp
	spaceBeforePunct     *regexp.Regexp
	abbreviationReplacer *strings.Replacer
	punctuationReplacer  *strings.Replacer
}

// NewPreprocessor compiles the patterns once.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		numberPattern:     regexp.MustCompile(numberRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		spaceBeforePunct:  regexp.MustCompile(spaceBeforePunctPattern),
		abbreviationReplacer: strings.NewReplacer(
			"Mr.", "Mister",
			"Mrs.", "Misses",
			"Ms.", "Miss",
			"Dr.", "Doctor",
			"St.", "Saint",
			"Inc.", "Incorporated",
		),
		punctuationReplacer: strings.NewReplacer(
			"—", "-", "–", "-", "‒", "-",
			"…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize expands abbreviations and integers, straightens quotes and
// dashes, collapses whitespace and terminates the last sentence.
func (p *Preprocessor) Normalize(text string) string {
	text = p.abbreviationReplacer.Replace(text)
	text = p.punctuationReplacer.Replace(text)
	text = p.numberPattern.ReplaceAllStringFunc(text, func(s string) string {
		number, err := strconv.Atoi(s)
		if err != nil {
			return s
		}

		return integerToWords(number)
	})

	text = strings.TrimSpace(p.whitespacePattern.ReplaceAllString(text, " "))
	text = p.spaceBeforePunct.ReplaceAllString(text, "$1")

	return terminate(text)
}

// CollapseWhitespace joins the fields of text with single spaces.
func (p *Preprocessor) CollapseWhitespace(text string) string {
	return strings.TrimSpace(p.whitespacePattern.ReplaceAllString(text, " "))
}

func terminate(text string) string {
	if text == "" {
		return ""
	}

	last, _ := utf8.DecodeLastRuneInString(text)

	switch {
	case last == '.' || last == '!' || last == '?':
		return text
	case unicode.IsPunct(last) && last != '"' && last != '\'':
		return text[:len(text)-utf8.RuneLen(last)] + "."
	default:
		return text + "."
	}
}

var (
	smallNumbers = []string{
		"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
		"seventeen", "eighteen", "nineteen",
	}
	tensNumbers = []string{
		"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety",
	}
)

// integerToWords spells out 0..999999; other values are returned as digits.
func integerToWords(number int) string {
	if number < 0 || number > maxNumberForWords {
		return strconv.Itoa(number)
	}

	if number < len(smallNumbers) {
		return smallNumbers[number]
	}

	var parts []string

	if thousands := number / 1000; thousands > 0 {
		parts = append(parts, underThousand(thousands), "thousand")
	}

	if rest := number % 1000; rest > 0 {
		parts = append(parts, underThousand(rest))
	}

	return strings.Join(parts, " ")
}

func underThousand(number int) string {
	var parts []string

	if hundreds := number / 100; hundreds > 0 {
		parts = append(parts, smallNumbers[hundreds], "hundred")
	}

	rest := number % 100

	switch {
	case rest == 0:
	case rest < len(smallNumbers):
		parts = append(parts, smallNumbers[rest])
	default:
		parts = append(parts, tensNumbers[rest/10])
		if rest%10 > 0 {
			parts = append(parts, smallNumbers[rest%10])
		}
	}

	return strings.Join(parts, " ")
}

package questionnaire

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseResult is the outcome of interpreting a transcription against a
// question. A transcription the parser cannot interpret is not an error;
// ValueFound is false and Message explains what was missing so the caller
// can re-prompt the respondent.
type ParseResult struct {
	Value      any
	ValueFound bool
	Message    string
}

var digitPattern = regexp.MustCompile(`\d+`)

// Spoken number words replaced with digits before scale parsing. Covers the
// small scale vocabularies the questionnaires use.
var numberWords = []struct {
	word  string
	digit string
}{
	{"zwei", "2"}, {"eins", "1"}, {"drei", "3"}, {"vier", "4"}, {"fünf", "5"},
	{"two", "2"}, {"one", "1"}, {"three", "3"}, {"four", "4"}, {"five", "5"},
}

func normalize(text string) string {
	text = strings.ToLower(text)
	for _, nw := range numberWords {
		text = strings.ReplaceAll(text, nw.word, nw.digit)
	}
	return text
}

// ParseAnswer extracts a value from a transcription according to the
// question's type. Scale questions take the LAST in-range number mentioned,
// so a respondent correcting themselves ("three... no, four") lands on the
// correction. Boolean questions match the configured spoken synonyms.
func ParseAnswer(text string, question Question) ParseResult {
	processed := normalize(text)

	switch question.Type {
	case TypeScale:
		return parseScale(processed, question)
	case TypeBooleanCustomMap:
		return parseBoolean(processed, question)
	default:
		return ParseResult{Message: fmt.Sprintf("unsupported question type %q", question.Type)}
	}
}

func parseScale(processed string, question Question) ParseResult {
	numbers := digitPattern.FindAllString(processed, -1)
	if len(numbers) == 0 {
		return ParseResult{Message: "No number found in response."}
	}
	for i := len(numbers) - 1; i >= 0; i-- {
		value, err := strconv.Atoi(numbers[i])
		if err != nil {
			continue
		}
		if question.MinValue == nil || question.MaxValue == nil {
			return ParseResult{Value: value, ValueFound: true}
		}
		if *question.MinValue <= value && value <= *question.MaxValue {
			return ParseResult{Value: value, ValueFound: true}
		}
	}
	if question.MinValue != nil && question.MaxValue != nil {
		return ParseResult{Message: fmt.Sprintf("Number found, but not in range [%d-%d].", *question.MinValue, *question.MaxValue)}
	}
	return ParseResult{Message: "Number found, but question scale range is not defined."}
}

func parseBoolean(processed string, question Question) ParseResult {
	for _, word := range question.TrueValueSpoken {
		if strings.Contains(processed, strings.ToLower(word)) {
			return ParseResult{Value: question.TrueValueNumeric, ValueFound: true}
		}
	}
	for _, word := range question.FalseValueSpoken {
		if strings.Contains(processed, strings.ToLower(word)) {
			return ParseResult{Value: question.FalseValueNumeric, ValueFound: true}
		}
	}
	return ParseResult{Message: "Could not understand 'yes' or 'no' equivalent."}
}

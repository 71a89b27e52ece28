package grading

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	// ErrMalformedSegments indicates generator output could not be decoded even after quote repair.
	ErrMalformedSegments = errors.New("malformed segment list")
	// ErrInvalidSegmentShape indicates the decoded value is not a flat array of single-key string objects.
	ErrInvalidSegmentShape = errors.New("invalid segment list shape")
)

// quotedValue captures `"key": "` , the value body that may hold bare quotes, and the closing
// quote plus delimiter. The body alternates quote-free runs with quoted runs, lazily, so the
// first `"` followed by `,` or `}` terminates it.
var quotedValue = regexp.MustCompile(`(?s)("[\w\d]+"\s*:\s*")([^"]*(?:"[^"]*"[^"]*)*?)("\s*[,}])`)

const segmentListSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"minProperties": 1,
		"maxProperties": 1,
		"additionalProperties": {"type": "string"}
	}
}`

var segmentSchema = jsonschema.MustCompileString("segments.json", segmentListSchema)

// Record is one decoded `{"pointN": "text"}` entry.
type Record struct {
	Key   string
	Value string
}

// Parser decodes generator segment lists, repairing unescaped quotes once.
type Parser struct {
	logger zerolog.Logger
}

// NewParser constructs a parser.
func NewParser(logger zerolog.Logger) *Parser {
	return &Parser{logger: logger.With().Str("component", "segment_parser").Logger()}
}

// Parse decodes raw into ordered records. A strict decode is tried first; on failure the
// quote-repair pass runs and decoding is retried once. Anything else is an error.
func (p *Parser) Parse(raw string) ([]Record, error) {
	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		repaired := RepairQuotes(raw)
		if retryErr := json.Unmarshal([]byte(repaired), &doc); retryErr != nil {
			p.logger.Error().Err(retryErr).Str("repaired", repaired).Msg("could not decode segments after quote repair")
			return nil, fmt.Errorf("%w: %v", ErrMalformedSegments, retryErr)
		}
		p.logger.Debug().Msg("segments decoded after quote repair")
	}

	return recordsFromDocument(doc)
}

// ParseSegments decodes raw and flattens it to the ordered segment texts.
func (p *Parser) ParseSegments(raw string) ([]string, error) {
	records, err := p.Parse(raw)
	if err != nil {
		return nil, err
	}
	return Flatten(records), nil
}

// RepairQuotes escapes bare quotes inside `"key": "value"` bodies without touching the
// structural quotes around keys and values.
func RepairQuotes(raw string) string {
	matches := quotedValue.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return raw
	}

	var builder strings.Builder
	builder.Grow(len(raw) + 16)
	last := 0
	for _, m := range matches {
		contentStart, contentEnd := m[4], m[5]
		builder.WriteString(raw[last:contentStart])
		builder.WriteString(escapeBareQuotes(raw[contentStart:contentEnd]))
		last = contentEnd
	}
	builder.WriteString(raw[last:])
	return builder.String()
}

// escapeBareQuotes escapes quotes that are not already escaped.
func escapeBareQuotes(content string) string {
	var builder strings.Builder
	builder.Grow(len(content) + 8)
	backslashes := 0
	for _, r := range content {
		if r == '"' && backslashes%2 == 0 {
			builder.WriteByte('\\')
		}
		if r == '\\' {
			backslashes++
		} else {
			backslashes = 0
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

func recordsFromDocument(doc interface{}) ([]Record, error) {
	if err := segmentSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSegmentShape, err)
	}

	items, _ := doc.([]interface{})
	records := make([]Record, 0, len(items))
	for _, item := range items {
		object, _ := item.(map[string]interface{})
		for key, value := range object {
			text, _ := value.(string)
			records = append(records, Record{Key: key, Value: text})
		}
	}
	return records, nil
}

// Flatten extracts each record's value, preserving order.
func Flatten(records []Record) []string {
	segments := make([]string, 0, len(records))
	for _, record := range records {
		segments = append(segments, record.Value)
	}
	return segments
}

// Serialize renders records in the array-of-single-key-objects format.
func Serialize(records []Record) (string, error) {
	objects := make([]map[string]string, 0, len(records))
	for _, record := range records {
		objects = append(objects, map[string]string{record.Key: record.Value})
	}
	payload, err := json.Marshal(objects)
	if err != nil {
		return "", fmt.Errorf("serialize segments: %w", err)
	}
	return string(payload), nil
}

// SingleSegment renders text as a one-entry segment list.
func SingleSegment(text string) string {
	payload, _ := Serialize([]Record{{Key: "point1", Value: text}})
	return payload
}

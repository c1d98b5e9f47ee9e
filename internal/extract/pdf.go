package extract

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/regwatch/regcore/internal/model"
	appErr "github.com/regwatch/regcore/internal/pkg/errors"
)

// Result is the outcome of a successful text extraction.
type Result struct {
	Text       string
	PageCount  int
	Confidence float64
	Method     string
}

type Extractor struct {
	confidenceFloor   float64
	expectedPageRunes int
}

func NewExtractor(confidenceFloor float64, expectedPageRunes int) *Extractor {
	if confidenceFloor <= 0 {
		confidenceFloor = 0.35
	}
	if expectedPageRunes <= 0 {
		expectedPageRunes = 1800
	}
	return &Extractor{
		confidenceFloor:   confidenceFloor,
		expectedPageRunes: expectedPageRunes,
	}
}

var pdfMagic = []byte("%PDF-")

// Extract turns raw PDF bytes into text, page count and a confidence score.
// Malformed input (missing magic header) fails fast with ErrInvalidFormat.
// The pdfcpu strategy runs first; on failure or low confidence a lenient
// raw content-stream scan is attempted. Both failing yields
// ErrExtractionFailed.
func (e *Extractor) Extract(data []byte) (*Result, error) {
	if len(data) == 0 || !hasPDFHeader(data) {
		return nil, fmt.Errorf("%w: missing %%PDF header", appErr.ErrInvalidFormat)
	}

	primary, primaryErr := e.extractStructured(data)
	if primaryErr == nil && primary.Confidence >= e.confidenceFloor {
		return primary, nil
	}

	secondary := e.extractRawScan(data)
	if secondary != nil {
		// Keep the better of the two when the structured pass produced
		// something usable below the floor.
		if primaryErr == nil && primary.Confidence >= secondary.Confidence {
			return primary, nil
		}
		return secondary, nil
	}
	if primaryErr == nil && primary.Text != "" {
		return primary, nil
	}
	if primaryErr != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrExtractionFailed, primaryErr)
	}
	return nil, fmt.Errorf("%w: no text content found", appErr.ErrExtractionFailed)
}

// The header may be preceded by a small amount of junk, which readers
// tolerate. Only the first KiB is inspected.
func hasPDFHeader(data []byte) bool {
	limit := len(data)
	if limit > 1024 {
		limit = 1024
	}
	return bytes.Contains(data[:limit], pdfMagic)
}

func (e *Extractor) extractStructured(data []byte) (*Result, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	var pages []string
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pageText := extractPageText(ctx, pageNr)
		if pageText == "" {
			continue
		}
		pages = append(pages, pageText)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no text content in %d pages", ctx.PageCount)
	}

	text := strings.Join(pages, "\n\n")
	return &Result{
		Text:       text,
		PageCount:  ctx.PageCount,
		Confidence: e.confidence(text, ctx.PageCount),
		Method:     model.ExtractMethodPDFCPU,
	}, nil
}

func extractPageText(ctx *pdfmodel.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return parseContentStream(data)
}

var pageTypeRe = regexp.MustCompile(`/Type\s*/Page\b`)

// extractRawScan is the lenient fallback: it parses text-showing operators
// out of the raw byte stream without validating document structure. It
// only sees uncompressed content streams, so its confidence is usually
// lower than the structured pass.
func (e *Extractor) extractRawScan(data []byte) *Result {
	text := parseContentStream(data)
	if text == "" {
		return nil
	}
	pageCount := len(pageTypeRe.FindAll(data, -1))
	if pageCount == 0 {
		pageCount = 1
	}
	return &Result{
		Text:       text,
		PageCount:  pageCount,
		Confidence: e.confidence(text, pageCount),
		Method:     model.ExtractMethodRawScan,
	}
}

// confidence compares the extracted rune count against an independent
// page-based estimate and weights it by the printable-character ratio.
// The value always lies in [0,1].
func (e *Extractor) confidence(text string, pageCount int) float64 {
	if pageCount <= 0 {
		pageCount = 1
	}
	runes := len([]rune(text))
	coverage := float64(runes) / float64(pageCount*e.expectedPageRunes)
	if coverage > 1 {
		coverage = 1
	}
	score := coverage * printableRatio(text)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// parseContentStream pulls text out of PDF content stream operators
// (Tj, TJ, ', T*, Td/TD).
func parseContentStream(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				if text := decodePDFString(m[1]); text != "" {
					sb.WriteString(text)
				}
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				if text := decodePDFString(m[1]); text != "" {
					sb.WriteByte('\n')
					sb.WriteString(text)
				}
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}

	return cleanText(sb.String())
}

// decodePDFString handles basic PDF escape sequences, including octal.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '\\', '(', ')':
				sb.WriteByte(raw[i])
			default:
				if raw[i] >= '0' && raw[i] <= '7' {
					val := int(raw[i] - '0')
					for j := 0; j < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; j++ {
						i++
						val = val*8 + int(raw[i]-'0')
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(raw[i])
				}
			}
		} else {
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// cleanText collapses runs of spaces while keeping newline structure so the
// chunker can still see paragraph boundaries.
func cleanText(text string) string {
	var sb strings.Builder
	prevSpace := false
	prevNewline := false
	for _, r := range text {
		switch {
		case r == '\n':
			if !prevNewline {
				sb.WriteByte('\n')
			}
			prevNewline = true
			prevSpace = true
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			prevSpace = true
			prevNewline = false
		case unicode.IsPrint(r):
			sb.WriteRune(r)
			prevSpace = false
			prevNewline = false
		}
	}
	return strings.TrimSpace(sb.String())
}

// printableRatio returns the share of printable characters, discounting
// private-use-area glyphs and control noise typical of broken extractions.
func printableRatio(text string) float64 {
	if len(text) == 0 {
		return 0
	}
	total := 0
	printable := 0
	for _, r := range text {
		total++
		if isGarbageRune(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(printable) / float64(total)
}

func isGarbageRune(r rune) bool {
	if r >= 0xE000 && r <= 0xF8FF {
		return true
	}
	if r == 0xFFFD {
		return true
	}
	if r < 0x0020 && r != '\n' && r != '\r' && r != '\t' {
		return true
	}
	return false
}

package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/regwatch/regcore/internal/model"
	appErr "github.com/regwatch/regcore/internal/pkg/errors"
)

// minimalPDF builds a syntactically plausible single-page document with an
// uncompressed content stream so both extraction strategies can see it.
func minimalPDF(content string) []byte {
	stream := ""
	for _, line := range strings.Split(content, "\n") {
		stream += fmt.Sprintf("(%s) Tj\nT*\n", line)
	}
	return []byte("%PDF-1.4\n" +
		"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
		"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
		"3 0 obj\n<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>\nendobj\n" +
		"4 0 obj\n<< /Length " + fmt.Sprint(len(stream)) + " >>\nstream\nBT\n" + stream + "ET\nendstream\nendobj\n" +
		"%%EOF\n")
}

func TestExtractRejectsNonPDF(t *testing.T) {
	e := NewExtractor(0, 0)

	_, err := e.Extract(nil)
	require.ErrorIs(t, err, appErr.ErrInvalidFormat)

	_, err = e.Extract([]byte("<html>not a pdf</html>"))
	require.ErrorIs(t, err, appErr.ErrInvalidFormat)

	// Magic buried past the first KiB does not count.
	junk := append(make([]byte, 2048), []byte("%PDF-1.4")...)
	_, err = e.Extract(junk)
	require.ErrorIs(t, err, appErr.ErrInvalidFormat)
}

func TestExtractFailsWithoutTextContent(t *testing.T) {
	e := NewExtractor(0, 0)
	_, err := e.Extract([]byte("%PDF-1.4\nno streams here\n%%EOF"))
	require.ErrorIs(t, err, appErr.ErrExtractionFailed)
}

func TestExtractFallsBackToRawScan(t *testing.T) {
	e := NewExtractor(0.01, 100)
	// Structurally broken (no xref) but carrying readable operators: the
	// structured pass fails, the raw scan succeeds.
	res, err := e.Extract(minimalPDF("Article 7 applies to all credit institutions."))
	require.NoError(t, err)
	require.Equal(t, model.ExtractMethodRawScan, res.Method)
	require.Contains(t, res.Text, "Article 7 applies to all credit institutions.")
	require.Equal(t, 1, res.PageCount)
	require.Greater(t, res.Confidence, 0.0)
	require.LessOrEqual(t, res.Confidence, 1.0)
}

func TestParseContentStreamOperators(t *testing.T) {
	stream := []byte("BT\n(Hello) Tj\n1 0 Td\n(World) Tj\nT*\n(Next line) Tj\nET\n")
	text := parseContentStream(stream)
	require.Equal(t, "Hello World\nNext line", text)
}

func TestParseContentStreamTJArray(t *testing.T) {
	stream := []byte("[(Reg) -250 (ulation)] TJ\n")
	require.Equal(t, "Regulation", parseContentStream(stream))
}

func TestDecodePDFString(t *testing.T) {
	require.Equal(t, "a(b)c", decodePDFString([]byte(`a\(b\)c`)))
	require.Equal(t, "tab\there", decodePDFString([]byte(`tab\there`)))
	// Octal escape: \101 is 'A'.
	require.Equal(t, "A", decodePDFString([]byte(`\101`)))
	require.Equal(t, `back\slash`, decodePDFString([]byte(`back\\slash`)))
}

func TestConfidenceScoring(t *testing.T) {
	e := NewExtractor(0.35, 100)

	// A full page of clean text scores high.
	full := strings.Repeat("regulatory text ", 10)
	require.Greater(t, e.confidence(full, 1), 0.9)

	// Tiny yield against the same page estimate scores low.
	require.Less(t, e.confidence("x", 1), 0.05)

	// Never exceeds 1 even for overlong pages.
	require.LessOrEqual(t, e.confidence(strings.Repeat("a", 10000), 1), 1.0)
}

func TestPrintableRatioDiscountsGarbage(t *testing.T) {
	require.Equal(t, 1.0, printableRatio("clean text"))
	require.Equal(t, 0.0, printableRatio(""))

	garbage := string([]rune{0xE001, 0xE002, 0xFFFD, 'a'})
	require.InDelta(t, 0.25, printableRatio(garbage), 0.001)
}

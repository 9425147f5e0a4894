package extraction

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"github.com/otiai10/gosseract/v2"
)

// Extraction methods reported in Result.ExtractionMethod.
const (
	MethodPDFText  = "pdf-text"
	MethodImageOCR = "image-ocr"
)

var supportedImageTypes = []string{
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
	"image/heic",
	"image/heif",
}

// Extractor converts receipt files (PDF or images) into normalized
// plain text. PDFs are read through their text layer; images go
// through Tesseract OCR.
//
// Requires tesseract-ocr with the deu and eng trained data installed.
type Extractor struct {
	languages []string
}

// NewExtractor creates an Extractor configured for German receipts
// (German + English OCR dictionaries).
func NewExtractor() *Extractor {
	return &Extractor{languages: []string{"deu", "eng"}}
}

// Extract reads the file at path and returns its text. The media type
// is sniffed from content, never from the file name. The input file
// is only read; cleanup stays with the caller.
func (e *Extractor) Extract(path string) Result {
	if _, err := os.Stat(path); err != nil {
		return Failure("File not found: "+path, "")
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return Failure(fmt.Sprintf("Could not detect file type: %v", err), "")
	}

	if mtype.Is("application/pdf") {
		return e.extractFromPDF(path)
	}

	for _, imageType := range supportedImageTypes {
		if mtype.Is(imageType) {
			return e.extractFromImage(path, imageType)
		}
	}

	return Failure(
		fmt.Sprintf("Unsupported file type: %s. Supported: PDF, PNG, JPG, GIF, WEBP, HEIC.", mtype.String()),
		mtype.String(),
	)
}

// extractFromPDF reads the PDF text layer page by page. Pure scans
// without a text layer come back empty and fail later as empty input.
func (e *Extractor) extractFromPDF(path string) Result {
	doc, err := fitz.New(path)
	if err != nil {
		return Failure("PDF extraction failed: "+err.Error(), "application/pdf")
	}
	defer doc.Close()

	var b strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		text, err := doc.Text(page)
		if err != nil {
			return Failure(fmt.Sprintf("PDF extraction failed on page %d: %v", page+1, err), "application/pdf")
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	return Result{
		Success:          true,
		Text:             NormalizeText(b.String()),
		FileType:         "application/pdf",
		ExtractionMethod: MethodPDFText,
	}
}

func (e *Extractor) extractFromImage(path, fileType string) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return Failure("OCR extraction failed: "+err.Error(), fileType)
	}

	// Tesseract's image loader has no HEIC support, so iPhone photos
	// are converted to PNG first.
	if isHEIC(data) || strings.Contains(fileType, "hei") {
		data, err = heicToPNG(data)
		if err != nil {
			return Failure("OCR extraction failed: "+err.Error(), fileType)
		}
	}

	client := gosseract.NewClient()
	defer client.Close()

	// German + English dictionaries give the best results for German
	// receipts with international product names.
	if err := client.SetLanguage(e.languages...); err != nil {
		return Failure("OCR extraction failed: "+err.Error(), fileType)
	}

	// Receipts are narrow single-column documents; treat the page as
	// one uniform block of text.
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return Failure("OCR extraction failed: "+err.Error(), fileType)
	}

	if err := client.SetImageFromBytes(data); err != nil {
		return Failure("OCR extraction failed: "+err.Error(), fileType)
	}

	text, err := client.Text()
	if err != nil {
		return Failure("OCR extraction failed: "+err.Error(), fileType)
	}

	slog.Debug("OCR complete", "file", path, "chars", len(text))

	return Result{
		Success:          true,
		Text:             NormalizeText(text),
		FileType:         fileType,
		ExtractionMethod: MethodImageOCR,
	}
}

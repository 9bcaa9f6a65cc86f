package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
)

const (
	MimePDF  = "application/pdf"
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeBMP  = "image/bmp"
	MimeTIFF = "image/tiff"
)

// NormalizeContentType lowercases a MIME type, drops parameters and folds aliases
func NormalizeContentType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	switch mimeType {
	case "image/jpg":
		return MimeJPEG
	case "image/tif":
		return MimeTIFF
	}
	return mimeType
}

// ToPNG renders the first page of a PDF, or re-encodes a raster image, as PNG
func ToPNG(data []byte, contentType string) ([]byte, error) {
	mimeType := NormalizeContentType(contentType)
	if mimeType == MimePNG {
		return data, nil
	}

	var (
		img image.Image
		err error
	)
	if mimeType == MimePDF {
		img, err = renderFirstPage(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding %s image: %w", mimeType, err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func renderFirstPage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// PageCount returns the number of pages in a document. Raster images count as one page.
func PageCount(data []byte, contentType string) (int, error) {
	if NormalizeContentType(contentType) != MimePDF {
		return 1, nil
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("counting PDF pages: %w", err)
	}
	return n, nil
}

// ContentTypeFromFilename guesses a supported MIME type from a file extension.
// Unknown extensions yield an empty string.
func ContentTypeFromFilename(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return MimePDF
	case ".png":
		return MimePNG
	case ".jpg", ".jpeg":
		return MimeJPEG
	case ".bmp":
		return MimeBMP
	case ".tif", ".tiff":
		return MimeTIFF
	default:
		return ""
	}
}

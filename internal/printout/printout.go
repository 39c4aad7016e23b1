// Package printout renders the QR code and the 80 mm thermal printer sheets
// handed out at the booth.
package printout

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
	_ "golang.org/x/image/webp"
)

const (
	DefaultQRSize = 300
	MinQRSize     = 64
	MaxQRSize     = 1024

	// Thermal paper geometry in millimetres.
	PaperWidth    = 80.0
	ReceiptHeight = 120.0
	ImageWidth    = 70.0
	Margin        = 5.0
	receiptQRSize = 50.0

	// DefaultMaxPortraitPixels caps embedded portraits at 8192x8192.
	DefaultMaxPortraitPixels = 8192 * 8192

	maxDisplayURL = 35
	title         = "Superhero Portrait"
)

// QR encodes content as a PNG with high error correction. size is clamped
// to [MinQRSize, MaxQRSize]; zero selects DefaultQRSize.
func QR(content string, size int) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("printout: qr content is empty")
	}
	switch {
	case size == 0:
		size = DefaultQRSize
	case size < MinQRSize:
		size = MinQRSize
	case size > MaxQRSize:
		size = MaxQRSize
	}
	png, err := qrcode.Encode(content, qrcode.High, size)
	if err != nil {
		return nil, fmt.Errorf("printout: encode qr: %w", err)
	}
	return png, nil
}

// Receipt is the download slip: title, QR, instructions, URL and timestamp.
type Receipt struct {
	URL          string
	Instructions [2]string
	At           time.Time
	Location     *time.Location
}

// DefaultInstructions are printed under the QR code.
var DefaultInstructions = [2]string{"Scan QR code to download", "your superhero portrait"}

// RenderReceipt lays out an 80 x 120 mm portrait page.
func RenderReceipt(r Receipt) ([]byte, error) {
	qr, err := QR(r.URL, DefaultQRSize)
	if err != nil {
		return nil, err
	}
	lines := r.Instructions
	if lines[0] == "" && lines[1] == "" {
		lines = DefaultInstructions
	}

	pdf := newSheet(ReceiptHeight)
	pdf.SetFont("Helvetica", "B", 12)
	centered(pdf, 11, title)

	pdf.RegisterImageOptionsReader("qr", gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qr))
	pdf.ImageOptions("qr", (PaperWidth-receiptQRSize)/2, 25, receiptQRSize, receiptQRSize, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	centered(pdf, 82, lines[0])
	centered(pdf, 89, lines[1])

	pdf.SetFont("Helvetica", "", 6)
	centered(pdf, 103, DisplayURL(r.URL))
	centered(pdf, 113, "Generated: "+stamp(r.At, r.Location))
	return output(pdf)
}

// Portrait is a full-width print of one image.
type Portrait struct {
	Image    []byte
	At       time.Time
	Location *time.Location

	// MaxPixels bounds width*height; zero selects DefaultMaxPortraitPixels.
	MaxPixels int
}

// RenderPortrait scales the image to ImageWidth and sizes the page to fit.
func RenderPortrait(p Portrait) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(p.Image))
	if err != nil {
		return nil, fmt.Errorf("printout: decode portrait: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, errors.New("printout: empty portrait")
	}
	limit := p.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPortraitPixels
	}
	if cfg.Width > limit/cfg.Height {
		return nil, fmt.Errorf("printout: portrait %dx%d exceeds %d pixels", cfg.Width, cfg.Height, limit)
	}
	imageType, data, err := pdfImage(format, p.Image)
	if err != nil {
		return nil, err
	}
	printHeight := ImageWidth * float64(cfg.Height) / float64(cfg.Width)
	pageHeight := printHeight + Margin*3 + 20

	pdf := newSheet(pageHeight)
	pdf.SetFont("Helvetica", "B", 10)
	centered(pdf, 7, title)

	opts := gofpdf.ImageOptions{ImageType: imageType}
	if info := pdf.RegisterImageOptionsReader("portrait", opts, bytes.NewReader(data)); info == nil {
		return nil, fmt.Errorf("printout: register portrait: %w", pdf.Error())
	}
	pdf.ImageOptions("portrait", (PaperWidth-ImageWidth)/2, 15, ImageWidth, printHeight, false, opts, 0, "")

	pdf.SetFont("Helvetica", "", 6)
	centered(pdf, pageHeight-7, "Generated: "+stamp(p.At, p.Location))
	return output(pdf)
}

// DisplayURL truncates long links for print.
func DisplayURL(u string) string {
	if len(u) <= maxDisplayURL {
		return u
	}
	return u[:maxDisplayURL] + "..."
}

// pdfImage returns data gofpdf can embed; webp and gif are re-encoded as PNG.
func pdfImage(format string, data []byte) (string, []byte, error) {
	switch format {
	case "jpeg":
		return "JPG", data, nil
	case "png":
		return "PNG", data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("printout: decode %s portrait: %w", format, err)
	}
	png, err := encodePNG(img)
	if err != nil {
		return "", nil, err
	}
	return "PNG", png, nil
}

func newSheet(height float64) *gofpdf.Fpdf {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           gofpdf.SizeType{Wd: PaperWidth, Ht: height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	return pdf
}

func centered(pdf *gofpdf.Fpdf, y float64, text string) {
	pdf.SetXY(0, y)
	pdf.CellFormat(PaperWidth, 4, text, "", 0, "C", false, 0, "")
}

func stamp(at time.Time, loc *time.Location) string {
	if at.IsZero() {
		at = time.Now()
	}
	if loc != nil {
		at = at.In(loc)
	}
	return at.Format("2006-01-02 15:04:05")
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("printout: render pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("printout: write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// Package render draws member cards as single page PDFs.
//
// Every visual element degrades on its own: a missing background becomes a
// flat fill, a missing photo a gray square and a failed QR code is left out.
// Only a failure to serialise the PDF itself is reported as an error.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/Kevjes/liberal-api/internal/models"
	"github.com/Kevjes/liberal-api/internal/utils"
	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
	"github.com/sirupsen/logrus"
)

// Card geometry in millimetres, origin at the top left corner.
const (
	CardWidth  = 85.6
	CardHeight = 53.98

	photoSize = 20.0
	photoX    = CardWidth - photoSize - 8
	photoY    = 8.0

	qrSize = 15.0
	qrX    = CardWidth - qrSize - 7
	qrY    = CardHeight - 4 - qrSize

	textX        = 7.0
	textFontSize = 8.0
	numberY      = 7.0
)

// Raster sizes used when resampling images before embedding.
const (
	backgroundPxW = 1011
	backgroundPxH = 638
	photoPx       = 300
)

const notAvailable = "N/A"

// Element names reported in ElementResult.
const (
	ElementBackground = "background"
	ElementPhoto      = "photo"
	ElementText       = "text"
	ElementQR         = "qr"
)

// CardData is everything drawn on a card face.
type CardData struct {
	Number       int64
	FirstName    string
	LastName     string
	Status       string
	Contact      string
	Department   string
	Municipality string
	PhotoRef     string
	QRPayload    string
	// UpdatedAt pins the PDF timestamps so unchanged cards render identically.
	UpdatedAt time.Time
}

// NewCardData flattens a stored card with its resolved relations.
func NewCardData(c *models.CardDetails) CardData {
	data := CardData{
		Number:       c.Number,
		FirstName:    c.FirstName,
		LastName:     c.LastName,
		Status:       c.Status,
		Contact:      c.Contact,
		Department:   c.DepartmentName(),
		Municipality: c.MunicipalityName(),
		UpdatedAt:    c.UpdatedAt,
	}
	if c.ImageURL != nil {
		data.PhotoRef = *c.ImageURL
	}
	if c.QRCodeURL != nil {
		data.QRPayload = *c.QRCodeURL
	}
	return data
}

// ElementResult records how one element of the card was drawn.
type ElementResult struct {
	Element  string `json:"element"`
	Fallback bool   `json:"fallback"`
	Reason   string `json:"reason,omitempty"`
}

// Document is a rendered card.
type Document struct {
	Bytes    []byte
	Elements []ElementResult
}

// Fallbacks returns the elements that were replaced or skipped.
func (d *Document) Fallbacks() []ElementResult {
	var out []ElementResult
	for _, e := range d.Elements {
		if e.Fallback {
			out = append(out, e)
		}
	}
	return out
}

// Loader fetches the images drawn on a card.
type Loader interface {
	Load(ctx context.Context, ref string) (image.Image, error)
	LoadFile(path string) (image.Image, error)
}

// Encoder produces QR code images.
type Encoder interface {
	Encode(payload string) (image.Image, error)
}

// Renderer lays out cards.
type Renderer struct {
	loader         Loader
	qr             Encoder
	backgroundPath string
	font           string
	logger         *logrus.Logger
}

// NewRenderer creates a renderer. font must name a PDF core font; anything
// else falls back to Helvetica.
func NewRenderer(loader Loader, qr Encoder, backgroundPath, font string, logger *logrus.Logger) *Renderer {
	return &Renderer{
		loader:         loader,
		qr:             qr,
		backgroundPath: backgroundPath,
		font:           coreFont(font, logger),
		logger:         logger,
	}
}

func coreFont(name string, logger *logrus.Logger) string {
	switch strings.ToLower(name) {
	case "helvetica", "arial", "courier", "times":
		return strings.ToLower(name)
	}
	logger.Warnf("Card font %q is not a core PDF font, using Helvetica", name)
	return "helvetica"
}

// Render draws data onto a new PDF page.
func (r *Renderer) Render(ctx context.Context, data CardData) (*Document, error) {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr:        "mm",
		OrientationStr: "P",
		Size:           fpdf.SizeType{Wd: CardWidth, Ht: CardHeight},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCatalogSort(true)
	if !data.UpdatedAt.IsZero() {
		pdf.SetCreationDate(data.UpdatedAt)
		pdf.SetModificationDate(data.UpdatedAt)
	}
	pdf.SetTitle(fmt.Sprintf("Carte de membre %s", utils.FormatCardNumber(data.Number, utils.CardFaceNumberWidth)), true)
	pdf.AddPage()

	doc := &Document{}
	bg := r.drawBackground(pdf)
	doc.Elements = append(doc.Elements,
		bg,
		r.drawPhoto(ctx, pdf, data.PhotoRef),
		r.drawText(pdf, data, !bg.Fallback),
		r.drawQR(pdf, data.QRPayload),
	)

	for _, e := range doc.Fallbacks() {
		r.logger.WithFields(logrus.Fields{
			"card_number": data.Number,
			"element":     e.Element,
		}).Warnf("Card element replaced: %s", e.Reason)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write card pdf: %w", err)
	}
	doc.Bytes = buf.Bytes()
	return doc, nil
}

func (r *Renderer) drawBackground(pdf *fpdf.Fpdf) ElementResult {
	res := ElementResult{Element: ElementBackground}
	img, err := r.loader.LoadFile(r.backgroundPath)
	if err == nil {
		img = imaging.Fill(img, backgroundPxW, backgroundPxH, imaging.Center, imaging.Lanczos)
		err = placeImage(pdf, "background", img, 0, 0, CardWidth, CardHeight)
	}
	if err != nil {
		pdf.SetFillColor(230, 230, 230)
		pdf.Rect(0, 0, CardWidth, CardHeight, "F")
		res.Fallback, res.Reason = true, err.Error()
	}
	return res
}

func (r *Renderer) drawPhoto(ctx context.Context, pdf *fpdf.Fpdf, ref string) ElementResult {
	res := ElementResult{Element: ElementPhoto}
	var err error
	if strings.TrimSpace(ref) == "" {
		err = fmt.Errorf("card has no photo")
	} else {
		var img image.Image
		if img, err = r.loader.Load(ctx, ref); err == nil {
			img = imaging.Fill(img, photoPx, photoPx, imaging.Center, imaging.Lanczos)
			err = placeImage(pdf, "photo", img, photoX, photoY, photoSize, photoSize)
		}
	}
	if err != nil {
		pdf.SetFillColor(178, 178, 178)
		pdf.Rect(photoX, photoY, photoSize, photoSize, "F")
		res.Fallback, res.Reason = true, err.Error()
	}
	return res
}

func (r *Renderer) drawText(pdf *fpdf.Fpdf, data CardData, overImage bool) ElementResult {
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if overImage {
		pdf.SetTextColor(255, 255, 255)
	} else {
		pdf.SetTextColor(33, 33, 33)
	}
	pdf.SetFont(r.font, "B", textFontSize)

	pdf.Text(photoX, numberY, tr("N°: "+utils.FormatCardNumber(data.Number, utils.CardFaceNumberWidth)))
	lines := []struct {
		label, value string
		y            float64
	}{
		{"Nom", data.FirstName, 15},
		{"Prénom", data.LastName, 20},
		{"Statut", data.Status, 25},
		{"Contact", data.Contact, 30},
		{"Département", orNA(data.Department), 35},
		{"Commune", orNA(data.Municipality), 40},
	}
	for _, l := range lines {
		pdf.Text(textX, l.y, tr(l.label+": "+l.value))
	}
	return ElementResult{Element: ElementText}
}

func (r *Renderer) drawQR(pdf *fpdf.Fpdf, payload string) ElementResult {
	res := ElementResult{Element: ElementQR}
	img, err := r.qr.Encode(payload)
	if err == nil {
		err = placeImage(pdf, "qr", img, qrX, qrY, qrSize, qrSize)
	}
	if err != nil {
		res.Fallback, res.Reason = true, err.Error()
	}
	return res
}

// placeImage embeds img as PNG. A registration failure is cleared so the
// rest of the document can still be written.
func placeImage(pdf *fpdf.Fpdf, name string, img image.Image, x, y, w, h float64) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, &buf)
	if err := pdf.Error(); err != nil {
		pdf.ClearError()
		return fmt.Errorf("failed to embed %s: %w", name, err)
	}
	pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	return nil
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

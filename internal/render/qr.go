package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/skip2/go-qrcode"
)

// ErrEmptyPayload is returned when asked to encode an empty string.
var ErrEmptyPayload = errors.New("qr payload is empty")

const (
	qrModulePixels  = 10
	qrBorderModules = 2
)

// QREncoder turns a payload into a black on white QR raster.
// Codes are generated on every call and never cached.
type QREncoder struct {
	level qrcode.RecoveryLevel
}

func NewQREncoder() *QREncoder {
	return &QREncoder{level: qrcode.Low}
}

// Encode returns a square image with a fixed module scale and a white border.
func (e *QREncoder) Encode(payload string) (image.Image, error) {
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	code, err := qrcode.New(payload, e.level)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	code.DisableBorder = true
	code.ForegroundColor = color.Black
	code.BackgroundColor = color.White

	// negative size means pixels per module
	symbol := code.Image(-qrModulePixels)
	border := qrBorderModules * qrModulePixels
	size := symbol.Bounds().Dx() + 2*border

	canvas := imaging.New(size, size, color.White)
	return imaging.Paste(canvas, symbol, image.Pt(border, border)), nil
}

package utils

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Card numbers are padded differently on the card face and in mail bodies.
const (
	CardFaceNumberWidth = 4
	EmailNumberWidth    = 6
)

// FormatCardNumber zero-pads n to width digits.
func FormatCardNumber(n int64, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}

// CardViewURL is the deep link encoded in a card's QR code.
func CardViewURL(domainURL string, id uuid.UUID) string {
	return strings.TrimRight(domainURL, "/") + "/cards/view/" + id.String()
}

// CardAttachmentName names the PDF mailed to a member,
// e.g. carte_membre_Doe_Jane.pdf.
func CardAttachmentName(firstName, lastName string) string {
	return fmt.Sprintf("carte_membre_%s_%s.pdf", fileSafe(lastName), fileSafe(firstName))
}

// fileSafe replaces spaces and path separators so the name stays a single file name.
func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), r == '/', r == '\\':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

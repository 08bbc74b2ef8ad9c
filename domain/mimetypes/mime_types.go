package mimetypes

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type MIME string

const (
	Unknown   MIME = "unknown"
	TextPlain MIME = "text/plain"
	TextHTML  MIME = "text/html"

	ApplicationPDF  MIME = "application/pdf"
	ApplicationJSON MIME = "application/json"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
	VideoMP4  MIME = "video/mp4"
)

// Normalize strips parameters and lower-cases a media type.
func Normalize(value string) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(strings.TrimSpace(value))
	if err != nil {
		return Unknown, false
	}
	return MIME(mt), true
}

// Canonical validates the syntax of a media type. Types the detector knows,
// aliases included, come back under their canonical name; any other well
// formed type, vendor types for instance, comes back normalized.
func Canonical(value string) (MIME, bool) {
	mt, ok := Normalize(value)
	if !ok {
		return Unknown, false
	}
	if known := mimetype.Lookup(string(mt)); known != nil {
		if canonical, ok := Normalize(known.String()); ok {
			return canonical, true
		}
	}
	return mt, true
}

// Package mimetypes classifies uploaded content by its sniffed media type.
package mimetypes

import (
	"mime"
	"strings"
)

type MIME string

const (
	Unknown         MIME = "application/octet-stream"
	TextPlain       MIME = "text/plain"
	ApplicationPDF  MIME = "application/pdf"
	ApplicationZIP  MIME = "application/zip"
	ApplicationJSON MIME = "application/json"
	ImagePNG        MIME = "image/png"
	ImageJPEG       MIME = "image/jpeg"
	ImageGIF        MIME = "image/gif"
	ImageWEBP       MIME = "image/webp"
	AudioMPEG       MIME = "audio/mpeg"
	AudioWAV        MIME = "audio/wav"
	AudioOGG        MIME = "audio/ogg"
	VideoMP4        MIME = "video/mp4"
	VideoWEBM       MIME = "video/webm"
)

// Kind is the coarse category used to pick a message type for an upload.
type Kind string

const (
	Image    Kind = "image"
	Video    Kind = "video"
	Audio    Kind = "audio"
	Document Kind = "document"
	Other    Kind = "other"
)

var documents = map[MIME]struct{}{
	TextPlain:                  {},
	ApplicationPDF:             {},
	ApplicationJSON:            {},
	ApplicationZIP:             {},
	"application/msword":       {},
	"application/rtf":          {},
	"application/vnd.ms-excel": {},
	"text/csv":                 {},

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
}

// Normalize strips parameters such as charset from a detected media type.
func Normalize(detected string) MIME {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown
	}
	return MIME(mt)
}

func KindOf(detected string) Kind {
	mt := Normalize(detected)
	if _, ok := documents[mt]; ok {
		return Document
	}
	switch {
	case strings.HasPrefix(string(mt), "image/"):
		return Image
	case strings.HasPrefix(string(mt), "video/"):
		return Video
	case strings.HasPrefix(string(mt), "audio/"):
		return Audio
	case strings.HasPrefix(string(mt), "text/"):
		return Document
	default:
		return Other
	}
}

func Matches(detected string, expected MIME) bool {
	return Normalize(detected) == expected
}

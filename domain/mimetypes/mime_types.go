package mimetypes

import (
	"mime"
	"strings"

	"chat-relay/domain"

	"github.com/gabriel-vasile/mimetype"
)

type MIME string

const (
	Unknown     MIME = "unknown"
	OctetStream MIME = "application/octet-stream"
	TextPlain   MIME = "text/plain"

	ApplicationPDF  MIME = "application/pdf"
	ApplicationJSON MIME = "application/json"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"

	VideoMP4  MIME = "video/mp4"
	VideoWebM MIME = "video/webm"

	AudioMPEG MIME = "audio/mpeg"
	AudioWAV  MIME = "audio/wav"
	AudioWebM MIME = "audio/webm"
	AudioMP4  MIME = "audio/mp4"
)

// mediaContainers carry either audio or video. Sniffing only sees the
// container, so an audio-only webm is detected as video/webm.
var mediaContainers = map[string]struct{}{
	"webm":  {},
	"mp4":   {},
	"ogg":   {},
	"3gpp":  {},
	"3gpp2": {},
}

// categoryPrefixes is ordered, the first matching prefix wins.
var categoryPrefixes = []struct {
	prefix   string
	category domain.Category
}{
	{"image/", domain.Image},
	{"video/", domain.Video},
	{"audio/", domain.Audio},
}

func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

// Normalize strips parameters and lowercases a declared content type.
// It returns Unknown when the value cannot be parsed.
func Normalize(contentType string) MIME {
	if strings.TrimSpace(contentType) == "" {
		return Unknown
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Unknown
	}
	return MIME(strings.ToLower(mt))
}

// CategoryOf maps a content type to its attachment category: image/*, video/*
// and audio/* keep their family, anything else is a file.
func CategoryOf(contentType MIME) domain.Category {
	for _, p := range categoryPrefixes {
		if strings.HasPrefix(string(contentType), p.prefix) {
			return p.category
		}
	}
	return domain.File
}

// Sniff detects the content type from the leading bytes of a payload.
func Sniff(head []byte) MIME {
	return Normalize(mimetype.Detect(head).String())
}

// Resolve returns the content type to store and its category. The declared
// type wins when it is readable; the sniffed type must still fall in the same
// category, otherwise ok is false.
func Resolve(declared string, head []byte) (contentType MIME, category domain.Category, ok bool) {
	sniffed := Sniff(head)
	normalized := Normalize(declared)
	if normalized == Unknown {
		if sniffed == Unknown {
			return Unknown, domain.File, false
		}
		return sniffed, CategoryOf(sniffed), true
	}
	category = CategoryOf(normalized)
	sniffedCategory := CategoryOf(sniffed)
	if sniffedCategory == category {
		return normalized, category, true
	}
	return normalized, category, sameContainer(normalized, sniffed)
}

// sameContainer reports whether an audio and a video type name one shared
// container, e.g. audio/webm and video/webm.
func sameContainer(a, b MIME) bool {
	if !isAudioOrVideo(CategoryOf(a)) || !isAudioOrVideo(CategoryOf(b)) {
		return false
	}
	subA, subB := containerOf(a), containerOf(b)
	if subA != subB {
		return false
	}
	_, ok := mediaContainers[subA]
	return ok
}

func isAudioOrVideo(c domain.Category) bool {
	return c == domain.Audio || c == domain.Video
}

func containerOf(contentType MIME) string {
	_, sub, found := strings.Cut(string(contentType), "/")
	if !found {
		return ""
	}
	return strings.TrimPrefix(sub, "x-")
}

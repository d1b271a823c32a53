package mimetypes

import (
	"testing"

	"chat-relay/domain"

	"github.com/stretchr/testify/require"
)

var (
	pngHead = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	mp4Head = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2', 'm', 'p', '4', '1'}
	mp3Head = []byte("ID3\x04\x00\x00\x00\x00\x00\x00")
	pdfHead = []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	// EBML header with a "webm" doc type, what MediaRecorder writes first.
	webmHead = []byte{
		0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42, 0x86, 0x81, 0x01, 0x42, 0xF7, 0x81, 0x01,
		0x42, 0xF2, 0x81, 0x04, 0x42, 0xF3, 0x81, 0x08, 0x42, 0x82, 0x84, 'w', 'e', 'b', 'm',
		0x42, 0x87, 0x81, 0x04, 0x42, 0x85, 0x81, 0x02,
	}
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		detected string
		expected MIME
		want     bool
	}{
		{"Plain text with charset", "text/plain; charset=utf-8", TextPlain, true},
		{"JSON", "application/json", ApplicationJSON, true},
		{"PDF", "application/pdf", ApplicationPDF, true},
		{"PNG", "image/png", ImagePNG, true},
		{"Mismatch", "text/plain; charset=utf-8", ApplicationJSON, false},
		{"Invalid MIME", "not a mime", TextPlain, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Matches(tt.detected, tt.expected)
			require.Equal(t, tt.want, ok)
		})
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		contentType MIME
		want        domain.Category
	}{
		{ImagePNG, domain.Image},
		{VideoMP4, domain.Video},
		{AudioMPEG, domain.Audio},
		{ApplicationPDF, domain.File},
		{TextPlain, domain.File},
		{"imagery/custom", domain.File},
		{Unknown, domain.File},
	}
	for _, tt := range tests {
		t.Run(string(tt.contentType), func(t *testing.T) {
			require.Equal(t, tt.want, CategoryOf(tt.contentType))
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name         string
		declared     string
		head         []byte
		wantType     MIME
		wantCategory domain.Category
		wantOK       bool
	}{
		{"png declared and sniffed", "image/png", pngHead, ImagePNG, domain.Image, true},
		{"mp4 declared and sniffed", "video/mp4", mp4Head, VideoMP4, domain.Video, true},
		{"mp3 declared and sniffed", "audio/mpeg", mp3Head, AudioMPEG, domain.Audio, true},
		{"pdf declared and sniffed", "application/pdf", pdfHead, ApplicationPDF, domain.File, true},
		{"declared parameters are stripped", "IMAGE/PNG; name=a.png", pngHead, ImagePNG, domain.Image, true},
		{"empty declared falls back to sniffed", "", pngHead, ImagePNG, domain.Image, true},
		{"png declared but pdf bytes", "image/png", pdfHead, ImagePNG, domain.Image, false},
		{"voice note in webm", "audio/webm", webmHead, AudioWebM, domain.Audio, true},
		{"voice note with codecs", "audio/webm;codecs=opus", webmHead, AudioWebM, domain.Audio, true},
		{"android voice note in mp4", "audio/mp4", mp4Head, AudioMP4, domain.Audio, true},
		{"webm video", "video/webm", webmHead, VideoWebM, domain.Video, true},
		{"audio declared but pdf bytes", "audio/webm", pdfHead, AudioWebM, domain.Audio, false},
		{"audio declared over another container", "audio/ogg", mp4Head, MIME("audio/ogg"), domain.Audio, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			contentType, category, ok := Resolve(tt.declared, tt.head)
			req.Equal(tt.wantOK, ok)
			req.Equal(tt.wantType, contentType)
			req.Equal(tt.wantCategory, category)
		})
	}
}

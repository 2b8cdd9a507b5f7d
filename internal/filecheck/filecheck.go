// Package filecheck validates uploaded file content against its declared
// type. Images are checked by magic-byte signature, PDF documents by
// signature plus a lightweight structural pass. Content is only ever
// inspected, never interpreted or executed.
package filecheck

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Kind is the declared type of an uploaded file.
type Kind string

const (
	// KindImage covers pet photos (JPEG, PNG, WebP).
	KindImage Kind = "image"
	// KindDocument covers quote and IPID PDFs.
	KindDocument Kind = "document"
)

// Default size limits in bytes. Oversized input is rejected before any
// content inspection, so a hostile upload cannot force a large parse.
const (
	DefaultMaxImageSize    = 10 * 1024 * 1024
	DefaultMaxDocumentSize = 25 * 1024 * 1024
)

// Verdict is the structured outcome of an integrity check.
type Verdict struct {
	OK           bool   `json:"ok"`
	DetectedType string `json:"detected_type,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// MagicSignature identifies a file format by a byte pattern at an offset.
// Preamble, when set, must additionally match at the start of the buffer
// (container formats like WebP's RIFF header).
type MagicSignature struct {
	Name       string
	Extensions []string
	Signature  []byte
	Offset     int
	Preamble   []byte
}

// imageSignatures lists the accepted image formats.
var imageSignatures = []MagicSignature{
	{
		Name:       "JPEG",
		Extensions: []string{".jpg", ".jpeg"},
		Signature:  []byte{0xFF, 0xD8, 0xFF},
		Offset:     0,
	},
	{
		Name:       "PNG",
		Extensions: []string{".png"},
		Signature:  []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
		Offset:     0,
	},
	{
		Name:       "WebP",
		Extensions: []string{".webp"},
		Signature:  []byte{0x57, 0x45, 0x42, 0x50}, // "WEBP", after the RIFF chunk header
		Offset:     8,
		Preamble:   []byte{0x52, 0x49, 0x46, 0x46}, // "RIFF"
	},
}

// pdfSignature is the mandatory PDF header.
var pdfSignature = []byte("%PDF-")

// pdfEOFMarker must appear near the end of a well-formed PDF.
var pdfEOFMarker = []byte("%%EOF")

// pdfPageObject matches a page object marker. This is a structural
// heuristic, not PDF parsing: an exotic but valid PDF using compressed
// object streams may be rejected (false negative), which is the
// conservative failure mode for an attachment gate.
var pdfPageObject = regexp.MustCompile(`/Type\s*/Page[^s]|/Type\s*/Page$`)

// pdfPageCount matches the page-tree count entry.
var pdfPageCount = regexp.MustCompile(`/Count\s+(\d+)`)

// Checker validates file content against declared type and size limits.
type Checker struct {
	maxImageSize    int64
	maxDocumentSize int64
}

// New creates a Checker with the given size limits in bytes. Non-positive
// limits fall back to the defaults.
func New(maxImageSize, maxDocumentSize int64) *Checker {
	if maxImageSize <= 0 {
		maxImageSize = DefaultMaxImageSize
	}
	if maxDocumentSize <= 0 {
		maxDocumentSize = DefaultMaxDocumentSize
	}
	return &Checker{
		maxImageSize:    maxImageSize,
		maxDocumentSize: maxDocumentSize,
	}
}

// Check validates raw upload bytes against the declared kind. The size cap
// is enforced first; signature and structure are only inspected on
// payloads that fit.
func (c *Checker) Check(kind Kind, filename string, data []byte) Verdict {
	if len(data) == 0 {
		return Verdict{OK: false, Reason: "file is empty"}
	}

	switch kind {
	case KindImage:
		return c.checkImage(filename, data)
	case KindDocument:
		return c.checkDocument(data)
	default:
		return Verdict{OK: false, Reason: fmt.Sprintf("unknown file kind %q", kind)}
	}
}

func (c *Checker) checkImage(filename string, data []byte) Verdict {
	if int64(len(data)) > c.maxImageSize {
		return Verdict{OK: false, Reason: "size limit exceeded"}
	}

	detected := detectImageFormat(data)
	if detected == nil {
		return Verdict{OK: false, Reason: "unrecognized image format"}
	}

	// A declared extension that disagrees with the detected signature is
	// rejected even if both would individually be acceptable.
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" && !extensionMatches(detected, ext) {
		return Verdict{
			OK:           false,
			DetectedType: detected.Name,
			Reason:       "content doesn't match extension",
		}
	}

	return Verdict{OK: true, DetectedType: detected.Name}
}

func (c *Checker) checkDocument(data []byte) Verdict {
	if int64(len(data)) > c.maxDocumentSize {
		return Verdict{OK: false, Reason: "size limit exceeded"}
	}

	if !bytes.HasPrefix(data, pdfSignature) {
		return Verdict{OK: false, Reason: "missing PDF signature"}
	}

	// The end-of-file marker must appear in the final kilobyte; a stream
	// truncated mid-transfer fails here.
	tail := data
	if len(tail) > 1024 {
		tail = tail[len(tail)-1024:]
	}
	if !bytes.Contains(tail, pdfEOFMarker) {
		return Verdict{OK: false, DetectedType: "PDF", Reason: "document is truncated"}
	}

	if PageCount(data) == 0 {
		return Verdict{OK: false, DetectedType: "PDF", Reason: "document has no pages"}
	}

	return Verdict{OK: true, DetectedType: "PDF"}
}

// PageCount returns a best-effort page count for a PDF byte stream: the
// largest page-tree /Count entry, or the number of /Type /Page markers
// when no count entry is present. Zero means no pages were found.
func PageCount(data []byte) int {
	count := 0
	for _, m := range pdfPageCount.FindAllSubmatch(data, -1) {
		n := 0
		for _, d := range m[1] {
			n = n*10 + int(d-'0')
		}
		if n > count {
			count = n
		}
	}
	if count > 0 {
		return count
	}
	return len(pdfPageObject.FindAll(data, -1))
}

// detectImageFormat returns the matching image signature, or nil.
func detectImageFormat(data []byte) *MagicSignature {
	for i := range imageSignatures {
		sig := &imageSignatures[i]
		end := sig.Offset + len(sig.Signature)
		if len(data) < end {
			continue
		}
		if !bytes.Equal(data[sig.Offset:end], sig.Signature) {
			continue
		}
		if len(sig.Preamble) > 0 && !bytes.HasPrefix(data, sig.Preamble) {
			continue
		}
		return sig
	}
	return nil
}

func extensionMatches(sig *MagicSignature, ext string) bool {
	for _, e := range sig.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

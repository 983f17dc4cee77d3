package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// fileType describes one accepted upload extension.
type fileType struct {
	MimeType string `json:"mime_type"`
	Category string `json:"category"`
}

var knownFileTypes = map[string]fileType{
	".pdf":  {"application/pdf", "document"},
	".doc":  {"application/msword", "document"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "document"},
	".txt":  {"text/plain", "document"},
	".jpg":  {"image/jpeg", "image"},
	".jpeg": {"image/jpeg", "image"},
	".png":  {"image/png", "image"},
	".gif":  {"image/gif", "image"},
	".bmp":  {"image/bmp", "image"},
	".webp": {"image/webp", "image"},
}

var errTooLarge = errors.New("file too large")

// unsupportedFileError carries the client-facing message for a refused extension.
type unsupportedFileError struct {
	ext       string
	supported []string
}

func (e *unsupportedFileError) Error() string {
	return fmt.Sprintf("unsupported file type %q", e.ext)
}

func (e *unsupportedFileError) message() string {
	return fmt.Sprintf("Type de fichier non supporté: %s. Types supportés: %s", e.ext, strings.Join(e.supported, ", "))
}

// FileInfo is reported back to the client with an answer about an upload.
type FileInfo struct {
	Name      string `json:"name"`
	Extension string `json:"extension"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// uploadPolicy decides which uploads are accepted.
type uploadPolicy struct {
	maxBytes int64
	allowed  map[string]fileType
}

func newUploadPolicy(maxBytes int64, extensions []string) uploadPolicy {
	p := uploadPolicy{maxBytes: maxBytes, allowed: make(map[string]fileType, len(extensions))}
	for _, ext := range extensions {
		ext = normalizeExt(ext)
		ft, ok := knownFileTypes[ext]
		if !ok {
			ft = fileType{MimeType: "application/octet-stream", Category: "document"}
		}
		p.allowed[ext] = ft
	}
	return p
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// extensions returns the accepted extensions without the leading dot, sorted.
func (p uploadPolicy) extensions() []string {
	out := make([]string, 0, len(p.allowed))
	for ext := range p.allowed {
		out = append(out, strings.TrimPrefix(ext, "."))
	}
	sort.Strings(out)
	return out
}

func (p uploadPolicy) maxMB() int64 { return p.maxBytes / (1 << 20) }

// inspect validates the file name and size and describes the upload.
func (p uploadPolicy) inspect(name string, size int64) (FileInfo, error) {
	ext := normalizeExt(filepath.Ext(name))
	ft, ok := p.allowed[ext]
	if !ok {
		shown := strings.TrimPrefix(ext, ".")
		if shown == "" {
			shown = "aucune extension"
		}
		return FileInfo{}, &unsupportedFileError{ext: shown, supported: p.extensions()}
	}
	if size > p.maxBytes {
		return FileInfo{}, errTooLarge
	}
	return FileInfo{
		Name:      name,
		Extension: strings.TrimPrefix(ext, "."),
		MimeType:  ft.MimeType,
		SizeBytes: size,
	}, nil
}

// describeFile turns upload bytes into the text given to the model. Only plain text is decoded;
// other types are represented by a placeholder line.
func describeFile(info FileInfo, data []byte) string {
	switch {
	case info.Extension == "txt":
		if !utf8.Valid(data) {
			return fmt.Sprintf("[Fichier texte non décodable: %s]", info.Name)
		}
		return string(data)
	case info.Extension == "pdf":
		return fmt.Sprintf("[Document PDF: %s - %d bytes]", info.Name, len(data))
	case strings.HasPrefix(info.MimeType, "image/"):
		return fmt.Sprintf("[Image: %s - %d bytes]", info.Name, len(data))
	default:
		return fmt.Sprintf("[Fichier: %s - Type: %s]", info.Name, info.Extension)
	}
}

func fileDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Modality is the source format family of a document
type Modality string

const (
	ModalityPDF   Modality = "pdf"
	ModalityDOCX  Modality = "docx"
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
)

// DocumentStatus represents the ingestion state of a document
type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusIndexed    DocumentStatus = "indexed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

var extensionModalities = map[string]Modality{
	"pdf":  ModalityPDF,
	"docx": ModalityDOCX,
	"doc":  ModalityDOCX,
	"png":  ModalityImage,
	"jpg":  ModalityImage,
	"jpeg": ModalityImage,
	"gif":  ModalityImage,
	"bmp":  ModalityImage,
	"webp": ModalityImage,
	"mp3":  ModalityAudio,
	"wav":  ModalityAudio,
	"ogg":  ModalityAudio,
	"m4a":  ModalityAudio,
	"flac": ModalityAudio,
}

// Document represents an uploaded source document
type Document struct {
	ID          string
	Filename    string
	Modality    Modality
	SizeBytes   int64
	Status      DocumentStatus
	TotalChunks int
	UploadedAt  time.Time
}

// NewDocument creates a new Document in the processing state
func NewDocument(id, filename string, modality Modality, sizeBytes int64, uploadedAt time.Time) *Document {
	return &Document{
		ID:          id,
		Filename:    filename,
		Modality:    modality,
		SizeBytes:   sizeBytes,
		Status:      DocumentStatusProcessing,
		TotalChunks: 0,
		UploadedAt:  uploadedAt,
	}
}

// ModalityFromFilename resolves the modality from the file extension.
func ModalityFromFilename(filename string) (Modality, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	m, ok := extensionModalities[ext]
	if !ok {
		return "", NewDomainErrorWithCause(ErrCodeValidation, ErrUnsupportedModality.Message, fmt.Errorf("extension %q", ext))
	}
	return m, nil
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.Filename == "" {
		return fmt.Errorf("document Filename is required")
	}

	if !IsValidModality(d.Modality) {
		return fmt.Errorf("document Modality is invalid: %s", d.Modality)
	}

	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}

	if d.SizeBytes < 0 {
		return fmt.Errorf("document SizeBytes cannot be negative")
	}

	return nil
}

// IsValidModality checks if a Modality is valid
func IsValidModality(m Modality) bool {
	switch m {
	case ModalityPDF, ModalityDOCX, ModalityImage, ModalityAudio:
		return true
	}
	return false
}

func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusProcessing, DocumentStatusIndexed, DocumentStatusFailed:
		return true
	}
	return false
}

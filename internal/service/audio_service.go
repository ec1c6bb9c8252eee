package service

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/aptiva/aptiva-backend/internal/config"
)

// Sentinel errors for audio uploads.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// Allowed audio MIME types for dictation material.
var allowedMIMETypes = map[string]string{
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
	"audio/ogg":  ".ogg",
	"audio/mp4":  ".m4a",
}

// AudioService stores uploaded dictation recordings. The returned ref
// goes into a question's dictation payload; the static /audio route and
// the audio store resolve it back to a URL.
type AudioService struct {
	cfg *config.Config
}

// NewAudioService creates a new AudioService.
func NewAudioService(cfg *config.Config) *AudioService {
	return &AudioService{cfg: cfg}
}

// SaveUpload saves an uploaded audio file under the audio directory with
// a UUID filename and returns its audio ref.
func (s *AudioService) SaveUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	contentType := header.Header.Get("Content-Type")
	ext, ok := allowedMIMETypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s (allowed: %s)",
			ErrUnsupportedFileType, contentType, strings.Join(allowedTypes(), ", "))
	}

	if header.Size > s.cfg.MaxUploadBytes {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, header.Size, s.cfg.MaxUploadBytes)
	}

	if err := os.MkdirAll(s.cfg.AudioDir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}

	ref := uuid.New().String() + ext
	destPath := filepath.Join(s.cfg.AudioDir, ref)

	dst, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return ref, nil
}

func allowedTypes() []string {
	types := make([]string, 0, len(allowedMIMETypes))
	for t := range allowedMIMETypes {
		types = append(types, t)
	}
	return types
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aptiva/aptiva-backend/internal/response"
	"github.com/aptiva/aptiva-backend/internal/service"
)

// AudioHandler handles dictation audio upload endpoints.
type AudioHandler struct {
	audioService *service.AudioService
}

// NewAudioHandler creates a new AudioHandler.
func NewAudioHandler(audioService *service.AudioService) *AudioHandler {
	return &AudioHandler{audioService: audioService}
}

// UploadAudio godoc
// POST /api/v1/admin/audio
// Uploads a dictation recording and returns its audio ref for use in
// question payloads.
func (h *AudioHandler) UploadAudio(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	ref, err := h.audioService.SaveUpload(file, header)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedFileType):
			response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
		case errors.Is(err, service.ErrFileTooLarge):
			response.Fail(c, http.StatusBadRequest, response.ErrFileTooLarge)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"audio_ref": ref})
}

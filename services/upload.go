package services

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"crowpro-api/models"
)

// ImageUpload is an uploaded image file as received from a multipart form.
type ImageUpload struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

var imageContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// imageKey validates the upload and returns the storage key and content type for it.
func imageKey(prefix string, upload ImageUpload, maxBytes int64) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(upload.Filename))
	contentType, ok := imageContentTypes[ext]
	if !ok {
		return "", "", models.ErrUnsupportedImage
	}
	if upload.Size <= 0 || (maxBytes > 0 && upload.Size > maxBytes) {
		return "", "", &models.ErrorValidation{Message: fmt.Sprintf("image must be between 1 and %d bytes", maxBytes)}
	}
	return fmt.Sprintf("%s/%s%s", prefix, uuid.NewString(), ext), contentType, nil
}

package slides

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"recast/internal/services"
)

// Storage writes rendered slide images beneath the media directory and
// hands back paths relative to it, suitable for appending to the public
// base URL.
type Storage struct {
	mediaDir string
}

// NewStorage constructs media storage rooted at mediaDir.
func NewStorage(mediaDir string) *Storage {
	return &Storage{mediaDir: mediaDir}
}

// SlidePath is the relative path a slide image is stored at.
func SlidePath(translationID int64, position int, destinationID *int64, mimeType string) string {
	name := fmt.Sprintf("slide_%d", position)
	if destinationID != nil {
		name = fmt.Sprintf("slide_%d_dest_%d", position, *destinationID)
	}
	return fmt.Sprintf("slides/%d/%s%s", translationID, name, extensionFor(mimeType))
}

// Save writes an image at the given relative path, creating parent
// directories as needed, and returns the relative path unchanged.
func (s *Storage) Save(relPath string, image *Image) (string, error) {
	if strings.Contains(relPath, "..") {
		return "", services.Wrap(services.ErrValidation, "slides", "save", "path escapes media dir", nil)
	}
	full := filepath.Join(s.mediaDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "slides", "save", "create media dir", err)
	}
	if err := os.WriteFile(full, image.Data, 0o644); err != nil {
		return "", services.Wrap(services.ErrTransient, "slides", "save", "write image", err)
	}
	return relPath, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

package extract

import (
	"path/filepath"
	"strings"

	// Registered with image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var extensionFormats = map[string]string{
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".png":  "png",
	".gif":  "gif",
	".bmp":  "bmp",
	".tif":  "tiff",
	".tiff": "tiff",
	".webp": "webp",
}

// DefaultExtensions are the image extensions picked up by batch extraction by default.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

func formatForExtension(ext string) (string, bool) {
	f, ok := extensionFormats[strings.ToLower(ext)]
	return f, ok
}

// Supported reports whether the file extension of path has a registered decoder.
func Supported(path string) bool {
	_, ok := formatForExtension(filepath.Ext(path))
	return ok
}

// ExtensionAllowed reports whether path's extension is in allowed (case-insensitive,
// leading dot optional). An empty allowed list accepts every supported image extension.
func ExtensionAllowed(path string, allowed []string) bool {
	if len(allowed) == 0 {
		return Supported(path)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == ext {
			return true
		}
	}
	return false
}

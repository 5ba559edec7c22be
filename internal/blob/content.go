package blob

import (
	"mime"
	"strings"
)

func contentType(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
		return t
	}

	return "application/octet-stream"
}

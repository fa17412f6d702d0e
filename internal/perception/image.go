package perception

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// ErrInvalidImage is returned for image payloads that cannot be decoded.
var ErrInvalidImage = errors.New("invalid image data")

// Image is an attachment sent alongside the prompt.
type Image struct {
	Data     []byte
	MIMEType string
}

const defaultImageMIME = "image/jpeg"

// DecodeImage accepts raw base64 or a data URL ("data:image/png;base64,...").
func DecodeImage(s string) (*Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	mime := ""
	if strings.HasPrefix(s, "data:") {
		header, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, fmt.Errorf("%w: data URL without payload", ErrInvalidImage)
		}
		mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		s = payload
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some clients strip padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	return &Image{Data: data, MIMEType: imageMIME(mime, data)}, nil
}

// LoadImage reads an image file from disk.
func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidImage, path)
	}
	return &Image{Data: data, MIMEType: imageMIME("", data)}, nil
}

func imageMIME(declared string, data []byte) string {
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return defaultImageMIME
}

// Package media stores message images on local disk and serves them under
// a public URL prefix.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/johndosdos/dmchat/internal/chat"
)

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Disk writes images to Dir and returns URLs under BaseURL.
type Disk struct {
	Dir     string
	BaseURL string
}

func NewDisk(dir, baseURL string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Disk{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Upload accepts a data URL or bare base64 payload.
func (d *Disk) Upload(ctx context.Context, payload string) (string, error) {
	data, err := decode(payload)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, chat.ErrValidation)
	}

	ext, ok := extensions[http.DetectContentType(data)]
	if !ok {
		return "", fmt.Errorf("unsupported image type: %w", chat.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(d.Dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return d.BaseURL + "/" + name, nil
}

// Delete removes an image previously returned by Upload. URLs from other
// hosts are ignored.
func (d *Disk) Delete(_ context.Context, url string) error {
	if !strings.HasPrefix(url, d.BaseURL+"/") {
		return nil
	}
	name := path.Base(strings.TrimPrefix(url, d.BaseURL+"/"))
	err := os.Remove(filepath.Join(d.Dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

// Handler serves stored images.
func (d *Disk) Handler() http.Handler {
	return http.FileServer(http.Dir(d.Dir))
}

func decode(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		i := strings.Index(payload, ",")
		if i < 0 || !strings.HasSuffix(payload[:i], ";base64") {
			return nil, fmt.Errorf("malformed data URL")
		}
		payload = payload[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	return data, nil
}

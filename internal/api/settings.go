package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/user/gatewaychat/internal/types"
)

// MaxLogoSize is the largest logo image the backend accepts.
const MaxLogoSize = 2 << 20

// Settings returns the organization's branding settings.
func (c *Client) Settings(ctx context.Context) (*types.OrgSettings, error) {
	var s types.OrgSettings
	if err := c.get(ctx, "/settings/", &s); err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return &s, nil
}

func (c *Client) UpdateSettings(ctx context.Context, update types.OrgSettingsUpdate) (*types.OrgSettings, error) {
	var s types.OrgSettings
	if err := c.send(ctx, http.MethodPatch, "/settings/", update, &s); err != nil {
		return nil, fmt.Errorf("updating settings: %w", err)
	}
	return &s, nil
}

// Logo returns the decoded organization logo, or nil when none is set.
func (c *Client) Logo(ctx context.Context) ([]byte, error) {
	var resp struct {
		LogoBase64 *string `json:"logo_base64"`
	}
	if err := c.get(ctx, "/settings/logo", &resp); err != nil {
		return nil, fmt.Errorf("loading logo: %w", err)
	}
	if resp.LogoBase64 == nil || *resp.LogoBase64 == "" {
		return nil, nil
	}
	// The backend may return a data URL.
	raw := *resp.LogoBase64
	if i := strings.Index(raw, ","); strings.HasPrefix(raw, "data:") && i >= 0 {
		raw = raw[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding logo: %w", err)
	}
	return data, nil
}

// UploadLogo replaces the organization logo with an image file.
func (c *Client) UploadLogo(ctx context.Context, filename string, data []byte) error {
	if len(data) > MaxLogoSize {
		return fmt.Errorf("logo is %d bytes, limit is %d", len(data), MaxLogoSize)
	}
	ctype := http.DetectContentType(data)
	if !strings.HasPrefix(ctype, "image/") {
		return fmt.Errorf("logo must be an image, got %s", ctype)
	}
	body, contentType, err := multipartFile(filepath.Base(filename), ctype, data)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPost, "/settings/logo", body, contentType, nil); err != nil {
		return fmt.Errorf("uploading logo: %w", err)
	}
	return nil
}

func (c *Client) DeleteLogo(ctx context.Context) error {
	if err := c.send(ctx, http.MethodDelete, "/settings/logo", nil, nil); err != nil {
		return fmt.Errorf("deleting logo: %w", err)
	}
	return nil
}

// multipartFile builds a single-part form with the upload under "file".
func multipartFile(filename, contentType string, data []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("building upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("building upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("building upload: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

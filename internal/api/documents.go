package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/gatewaychat/internal/types"
)

// MaxDocumentSize is the largest knowledge-base document the backend accepts.
const MaxDocumentSize = 10 << 20

// documentTypes maps accepted extensions to the content type sent with the
// upload.
var documentTypes = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// DocumentContentType returns the upload content type for filename, or an
// error if the backend would reject the file.
func DocumentContentType(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := documentTypes[ext]; ok {
		return ct, nil
	}
	return "", fmt.Errorf("unsupported document type %q (allowed: .txt, .md, .csv, .pdf, .docx, .html)", ext)
}

func (c *Client) ListDocuments(ctx context.Context) ([]types.Document, error) {
	var docs []types.Document
	if err := c.get(ctx, "/admin/documents/", &docs); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// UploadDocument adds a file to the organization's knowledge base. HTML
// files are converted to markdown first.
func (c *Client) UploadDocument(ctx context.Context, filename string, data []byte) (*types.Document, error) {
	filename = filepath.Base(filename)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm":
		md, err := htmltomarkdown.ConvertString(string(data))
		if err != nil {
			return nil, fmt.Errorf("convert to markdown: %w", err)
		}
		data = []byte(md)
		filename = strings.TrimSuffix(filename, filepath.Ext(filename)) + ".md"
	}

	ctype, err := DocumentContentType(filename)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("document %s is empty", filename)
	}
	if len(data) > MaxDocumentSize {
		return nil, fmt.Errorf("document %s is %d bytes, limit is %d", filename, len(data), MaxDocumentSize)
	}

	body, contentType, err := multipartFile(filename, ctype, data)
	if err != nil {
		return nil, err
	}
	var doc types.Document
	if err := c.do(ctx, http.MethodPost, "/admin/documents/", body, contentType, &doc); err != nil {
		return nil, fmt.Errorf("uploading %s: %w", filename, err)
	}
	return &doc, nil
}

// ImportURL fetches a web page, converts it to markdown and uploads it as a
// document named after the page path.
func (c *Client) ImportURL(ctx context.Context, rawURL string) (*types.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "gatewaychat/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch URL: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4*MaxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return c.UploadDocument(ctx, importName(u), data)
}

// importName derives an .html filename for a fetched page.
func importName(u *url.URL) string {
	name := path.Base(strings.TrimSuffix(u.Path, "/"))
	if name == "" || name == "." || name == "/" {
		name = u.Hostname()
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	return name + ".html"
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	if err := c.send(ctx, http.MethodDelete, "/admin/documents/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	return nil
}

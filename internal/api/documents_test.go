package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// readUpload parses the single multipart file part of an upload request.
func readUpload(t *testing.T, r *http.Request) (filename, contentType, body string) {
	t.Helper()
	if err := r.ParseMultipartForm(MaxDocumentSize); err != nil {
		t.Fatalf("parsing multipart form: %v", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		t.Fatalf("reading file part: %v", err)
	}
	defer file.Close()
	data, _ := io.ReadAll(file)
	return header.Filename, header.Header.Get("Content-Type"), string(data)
}

func TestUploadDocument(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/admin/documents/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		name, ctype, body := readUpload(t, r)
		if name != "notes.txt" || ctype != "text/plain" || body != "hello" {
			t.Errorf("unexpected upload %q %q %q", name, ctype, body)
		}
		w.Write([]byte(`{"id":"d1","filename":"notes.txt","file_size":5}`))
	})

	doc, err := client.UploadDocument(context.Background(), "/tmp/dir/notes.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if doc.ID != "d1" || doc.FileSize != 5 {
		t.Errorf("unexpected document %+v", doc)
	}
}

func TestUploadDocumentConvertsHTML(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		name, ctype, body := readUpload(t, r)
		if name != "policy.md" || ctype != "text/markdown" {
			t.Errorf("expected markdown upload, got %q %q", name, ctype)
		}
		if !strings.Contains(body, "# Policy") || strings.Contains(body, "<h1>") {
			t.Errorf("expected converted markdown, got %q", body)
		}
		w.Write([]byte(`{"id":"d2","filename":"policy.md"}`))
	})

	html := []byte("<html><body><h1>Policy</h1><p>No secrets.</p></body></html>")
	if _, err := client.UploadDocument(context.Background(), "policy.html", html); err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
}

func TestUploadDocumentRejects(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	ctx := context.Background()

	if _, err := client.UploadDocument(ctx, "image.png", []byte("x")); err == nil {
		t.Error("expected unsupported type error")
	}
	if _, err := client.UploadDocument(ctx, "empty.txt", nil); err == nil {
		t.Error("expected empty document error")
	}
	big := bytes.Repeat([]byte("a"), MaxDocumentSize+1)
	if _, err := client.UploadDocument(ctx, "big.csv", big); err == nil {
		t.Error("expected size limit error")
	}
}

func TestDocumentContentType(t *testing.T) {
	tests := map[string]string{
		"a.TXT":  "text/plain",
		"b.md":   "text/markdown",
		"c.csv":  "text/csv",
		"d.pdf":  "application/pdf",
		"e.docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
	for name, want := range tests {
		got, err := DocumentContentType(name)
		if err != nil || got != want {
			t.Errorf("DocumentContentType(%q) = %q, %v; want %q", name, got, err, want)
		}
	}
	if _, err := DocumentContentType("f.exe"); err == nil {
		t.Error("expected error for .exe")
	}
}

func TestImportURL(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<h2>Handbook</h2><ul><li>one</li></ul>"))
	}))
	defer page.Close()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		name, _, body := readUpload(t, r)
		if name != "handbook.md" {
			t.Errorf("unexpected filename %q", name)
		}
		if !strings.Contains(body, "## Handbook") {
			t.Errorf("expected markdown heading, got %q", body)
		}
		w.Write([]byte(`{"id":"d3","filename":"handbook.md"}`))
	})

	doc, err := client.ImportURL(context.Background(), page.URL+"/docs/handbook.html")
	if err != nil {
		t.Fatalf("ImportURL: %v", err)
	}
	if doc.ID != "d3" {
		t.Errorf("unexpected document %+v", doc)
	}
}

func TestImportURLInvalid(t *testing.T) {
	client := New(&Config{BaseURL: "http://unused"})
	if _, err := client.ImportURL(context.Background(), "ftp://example.com/x"); err == nil {
		t.Error("expected error for non-http url")
	}
}

func TestLogo(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nrest")
	encoded := base64.StdEncoding.EncodeToString(png)

	for _, payload := range []string{encoded, "data:image/png;base64," + encoded} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"logo_base64":"` + payload + `"}`))
		})
		got, err := client.Logo(context.Background())
		if err != nil {
			t.Fatalf("Logo: %v", err)
		}
		if !bytes.Equal(got, png) {
			t.Errorf("unexpected logo bytes %q", got)
		}
	}
}

func TestLogoUnset(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"logo_base64":null}`))
	})
	got, err := client.Logo(context.Background())
	if err != nil || got != nil {
		t.Errorf("expected no logo, got %v %v", got, err)
	}
}

func TestUploadLogo(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		name, ctype, _ := readUpload(t, r)
		if name != "logo.png" || ctype != "image/png" {
			t.Errorf("unexpected upload %q %q", name, ctype)
		}
		w.Write([]byte(`{"ok":true}`))
	})

	if err := client.UploadLogo(context.Background(), "assets/logo.png", png); err != nil {
		t.Fatalf("UploadLogo: %v", err)
	}
	if err := client.UploadLogo(context.Background(), "notes.txt", []byte("plain text")); err == nil {
		t.Error("expected non-image to be rejected")
	}
}

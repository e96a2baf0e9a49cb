package storage

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fileHeader builds a real multipart header by round-tripping a form.
func fileHeader(t *testing.T, name string, body []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(body)
	w.Close()

	req := httptest.NewRequest("POST", "/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatal(err)
	}
	return req.MultipartForm.File["file"][0]
}

func TestSaveWritesPrefixedName(t *testing.T) {
	s, err := New(t.TempDir(), 1024)
	if err != nil {
		t.Fatal(err)
	}
	name, err := s.Save(fileHeader(t, "My Paper (final).pdf", []byte("%PDF-1.4")))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasSuffix(name, ".pdf") || strings.ContainsAny(name, " ()") {
		t.Fatalf("unexpected stored name %q", name)
	}
	got, err := os.ReadFile(filepath.Join(s.Dir, name))
	if err != nil || string(got) != "%PDF-1.4" {
		t.Fatalf("stored content = %q, %v", got, err)
	}
	if URL(name) != "/uploads/"+name {
		t.Fatalf("url = %q", URL(name))
	}
}

func TestSaveRejectsTypeAndSize(t *testing.T) {
	s, _ := New(t.TempDir(), 4)
	if _, err := s.Save(fileHeader(t, "run.exe", []byte("MZ"))); !errors.Is(err, ErrFileType) {
		t.Fatalf("exe: got %v", err)
	}
	if _, err := s.Save(fileHeader(t, "big.txt", []byte("too long"))); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("big: got %v", err)
	}
	if _, err := s.Save(fileHeader(t, "empty.txt", nil)); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("empty: got %v", err)
	}
}

func TestSaveAllRollsBack(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir, 1024)
	_, err := s.SaveAll([]*multipart.FileHeader{
		fileHeader(t, "a.txt", []byte("ok")),
		fileHeader(t, "b.exe", []byte("no")),
	})
	if !errors.Is(err, ErrFileType) {
		t.Fatalf("got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected rollback, found %d files", len(entries))
	}
}

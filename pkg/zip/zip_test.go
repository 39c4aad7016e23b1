package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"
)

func TestArchiveAssets(t *testing.T) {
	at := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	raw, err := ArchiveAssets([]Asset{
		{Filename: "original.jpg", MIME: "image/jpeg", Data: []byte("jpg")},
		{Filename: "empty.txt", Data: nil},
		{Filename: "../composite.png", MIME: "image/png", Data: []byte("png")},
		{Filename: "composite.png", MIME: "image/png", Data: []byte("png2")},
		{Filename: "notes.txt", MIME: "text/plain", Data: []byte("hello hello hello")},
	}, at)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	want := map[string]string{
		"original.jpg":    "jpg",
		"composite.png":   "png",
		"composite-2.png": "png2",
		"notes.txt":       "hello hello hello",
	}
	if len(zr.File) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(zr.File))
	}
	for _, f := range zr.File {
		body, ok := want[f.Name]
		if !ok {
			t.Fatalf("unexpected entry %q", f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		got, _ := io.ReadAll(rc)
		rc.Close()
		if string(got) != body {
			t.Fatalf("%s: expected %q, got %q", f.Name, body, got)
		}
		if f.Name == "composite.png" && f.Method != zip.Store {
			t.Fatalf("png should be stored, got method %d", f.Method)
		}
	}
}

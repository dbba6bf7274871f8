package doc

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"
)

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create document.xml: %v", err)
	}
	doc := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body +
		`</w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatalf("write document.xml: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestParseDocx(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "paragraphs",
			body: `<w:p><w:r><w:t>The sky is blue.</w:t></w:r></w:p><w:p><w:r><w:t>Grass is green.</w:t></w:r></w:p>`,
			want: "The sky is blue.\nGrass is green.\n",
		},
		{
			name: "deleted revisions skipped",
			body: `<w:p><w:r><w:t>The sky is </w:t></w:r><w:del><w:r><w:t>green</w:t></w:r></w:del><w:r><w:t>blue.</w:t></w:r></w:p>`,
			want: "The sky is blue.\n",
		},
		{
			name: "table cells",
			body: `<w:tbl><w:tr><w:tc><w:p><w:r><w:t>model</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>budget</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`,
			want: "model\n\tbudget\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDocx(buildDocx(t, tc.body))
			if err != nil {
				t.Fatalf("ParseDocx() error = %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("ParseDocx() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseDocx_Invalid(t *testing.T) {
	if _, err := ParseDocx([]byte("not a zip")); err == nil {
		t.Fatalf("expected error for non zip content")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, _ = zw.Create("word/other.xml")
	_ = zw.Close()
	if _, err := ParseDocx(buf.Bytes()); err == nil {
		t.Fatalf("expected error for missing document.xml")
	}
}

type staticLoader map[string][]byte

func (s staticLoader) GetFileText(_ context.Context, source string) ([]byte, error) {
	return s[source], nil
}

func TestDocxFileLoader_GetFileText(t *testing.T) {
	l := NewDocxFileLoader(staticLoader{
		"paper.docx": buildDocx(t, `<w:p><w:r><w:t>Hello</w:t></w:r></w:p>`),
	})
	got, err := l.GetFileText(context.Background(), "paper.docx")
	if err != nil {
		t.Fatalf("GetFileText() error = %v", err)
	}
	if string(got) != "Hello\n" {
		t.Fatalf("GetFileText() = %q", got)
	}
}

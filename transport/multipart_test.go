package transport

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"testing"
)

func TestEncodeMultipart(t *testing.T) {
	body, contentType, err := EncodeMultipart(
		map[string]string{"title": "report", "author": "me"},
		[]FileField{
			{FieldName: "file", FileName: "a.txt", ContentType: "text/plain", Data: []byte("hello")},
			{FieldName: "raw", FileName: `b"c.bin`, Data: []byte{0x1, 0x2}},
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("unexpected content type %q: %v", contentType, err)
	}

	r := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	type part struct{ name, file, ctype, data string }
	var parts []part
	for {
		p, err := r.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		data, _ := io.ReadAll(p)
		parts = append(parts, part{p.FormName(), p.FileName(), p.Header.Get("Content-Type"), string(data)})
	}

	want := []part{
		{"author", "", "", "me"},
		{"title", "", "", "report"},
		{"file", "a.txt", "text/plain", "hello"},
		{"raw", `b"c.bin`, "application/octet-stream", "\x01\x02"},
	}
	if len(parts) != len(want) {
		t.Fatalf("expected %d parts, got %d: %+v", len(want), len(parts), parts)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Errorf("part %d: want %+v, got %+v", i, want[i], parts[i])
		}
	}
}

func TestEncodeMultipart_MissingFieldName(t *testing.T) {
	if _, _, err := EncodeMultipart(nil, []FileField{{FileName: "x"}}); err == nil {
		t.Error("expected error for file without field name")
	}
}

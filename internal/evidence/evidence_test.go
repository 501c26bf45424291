package evidence_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"auditline/internal/evidence"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R', 1, 2, 3}

func TestEncodeImageRoundTrip(t *testing.T) {
	f := evidence.FromBytes("photo.png", "image/png", pngHeader)
	uri, err := evidence.Encode(context.Background(), f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if uri == nil || !strings.HasPrefix(*uri, "data:image/png;base64,") {
		t.Fatalf("unexpected uri %v", uri)
	}
	if evidence.KindOf(uri) != evidence.KindImage {
		t.Fatalf("expected image kind, got %s", evidence.KindOf(uri))
	}
	mt, data, err := evidence.Decode(*uri)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if mt != "image/png" || !bytes.Equal(data, pngHeader) {
		t.Fatalf("round trip mismatch: %s %v", mt, data)
	}
}

func TestEncodeNonImage(t *testing.T) {
	content := []byte("%PDF-1.4 fake report")
	uri, err := evidence.Encode(context.Background(), evidence.FromBytes("report.pdf", "application/pdf", content))
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(evidence.MediaType(*uri), "image/") {
		t.Fatalf("non-image reported as image: %s", *uri)
	}
	if evidence.KindOf(uri) != evidence.KindAttachment {
		t.Fatalf("expected attachment kind")
	}
	_, data, err := evidence.Decode(*uri)
	if err != nil || !bytes.Equal(data, content) {
		t.Fatalf("decode mismatch: %v", err)
	}
}

func TestEncodeNilFile(t *testing.T) {
	uri, err := evidence.Encode(context.Background(), nil)
	if err != nil || uri != nil {
		t.Fatalf("expected nil, nil; got %v %v", uri, err)
	}
	if evidence.KindOf(nil) != evidence.KindNone {
		t.Fatalf("nil evidence should be KindNone")
	}
}

type brokenFile struct {
	openErr error
	readErr error
}

func (f brokenFile) Name() string        { return "broken.bin" }
func (f brokenFile) ContentType() string { return "application/octet-stream" }
func (f brokenFile) Open() (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return io.NopCloser(errReader{f.readErr}), nil
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestEncodeReadFailure(t *testing.T) {
	boom := errors.New("device unplugged")
	if _, err := evidence.Encode(context.Background(), brokenFile{openErr: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected open error, got %v", err)
	}
	uri, err := evidence.Encode(context.Background(), brokenFile{readErr: boom})
	if !errors.Is(err, boom) || uri != nil {
		t.Fatalf("expected read error and nil value, got %v %v", uri, err)
	}
	if !strings.Contains(err.Error(), "broken.bin") {
		t.Fatalf("error should name the file: %v", err)
	}
}

func TestEncodeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := evidence.Encode(ctx, evidence.FromBytes("a.txt", "text/plain", []byte("hello")))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestFromPathDetectsMediaType(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "Photo.PNG")
	if err := os.WriteFile(img, pngHeader, 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := evidence.FromPath(img)
	if err != nil {
		t.Fatalf("from path: %v", err)
	}
	if f.ContentType() != "image/png" || f.Name() != "Photo.PNG" {
		t.Fatalf("unexpected file %s %s", f.Name(), f.ContentType())
	}

	notes := filepath.Join(dir, "notes.zzunknown")
	if err := os.WriteFile(notes, []byte("plain words"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err = evidence.FromPath(notes)
	if err != nil {
		t.Fatal(err)
	}
	if f.ContentType() != "text/plain" {
		t.Fatalf("expected sniffed text/plain, got %s", f.ContentType())
	}

	if _, err := evidence.FromPath(filepath.Join(dir, "missing.jpg")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := evidence.FromPath(dir); err == nil {
		t.Fatalf("expected error for directory")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "hello", "data:image/png;base64", "data:image/png;base64,@@@"} {
		if err := evidence.Validate(in); !errors.Is(err, evidence.ErrInvalidDataURI) {
			t.Fatalf("%q: expected ErrInvalidDataURI, got %v", in, err)
		}
	}
	mt, data, err := evidence.Decode("data:,plain")
	if err != nil || mt != "text/plain" || string(data) != "plain" {
		t.Fatalf("plain data uri: %s %q %v", mt, data, err)
	}
}

// Package evidence turns an attached file into a self-describing data URI
// that can live inside an observation record, and reads such URIs back.
package evidence

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultMediaType = "application/octet-stream"
	chunkSize        = 32 * 1024
)

var ErrInvalidDataURI = errors.New("invalid data URI")

// Kind is how a stored evidence value should be presented.
type Kind int

const (
	KindNone Kind = iota
	KindImage
	KindAttachment
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindImage:
		return "image"
	case KindAttachment:
		return "attachment"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// File is a selected file: a byte stream plus its declared media type.
type File interface {
	Name() string
	ContentType() string
	Open() (io.ReadCloser, error)
}

type diskFile struct {
	path        string
	contentType string
}

func (f diskFile) Name() string                 { return filepath.Base(f.path) }
func (f diskFile) ContentType() string          { return f.contentType }
func (f diskFile) Open() (io.ReadCloser, error) { return os.Open(f.path) }

// FromPath describes a file on disk. The media type comes from the file
// extension, then from content sniffing.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("evidence file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("evidence file %s is a directory", path)
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if ct == "" {
		ct, err = sniff(path)
		if err != nil {
			return nil, err
		}
	}
	return diskFile{path: path, contentType: normalizeMediaType(ct)}, nil
}

func sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("evidence file: %w", err)
	}
	defer f.Close()
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read evidence %s: %w", path, err)
	}
	return http.DetectContentType(head[:n]), nil
}

type memFile struct {
	name        string
	contentType string
	data        []byte
}

func (f memFile) Name() string        { return f.name }
func (f memFile) ContentType() string { return f.contentType }
func (f memFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// FromBytes wraps in-memory content. An empty contentType is sniffed.
func FromBytes(name, contentType string, data []byte) File {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return memFile{name: name, contentType: normalizeMediaType(contentType), data: data}
}

// Encode reads f completely and returns data:<type>;base64,<payload>.
// A nil file yields a nil value.
func Encode(ctx context.Context, f File) (*string, error) {
	if f == nil {
		return nil, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open evidence %s: %w", f.Name(), err)
	}
	defer rc.Close()

	mediaType := normalizeMediaType(f.ContentType())
	var b strings.Builder
	b.WriteString("data:")
	b.WriteString(mediaType)
	b.WriteString(";base64,")
	enc := base64.NewEncoder(base64.StdEncoding, &b)
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("read evidence %s: %w", f.Name(), err)
		}
		n, rerr := rc.Read(buf)
		if n > 0 {
			if _, err := enc.Write(buf[:n]); err != nil {
				return nil, fmt.Errorf("encode evidence %s: %w", f.Name(), err)
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("read evidence %s: %w", f.Name(), rerr)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode evidence %s: %w", f.Name(), err)
	}
	out := b.String()
	return &out, nil
}

// Decode splits a data URI into its media type and content bytes.
func Decode(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}
	isBase64 := false
	if m, found := strings.CutSuffix(meta, ";base64"); found {
		meta = m
		isBase64 = true
	}
	mediaType := "text/plain"
	if meta != "" {
		mediaType = meta
	}
	if !isBase64 {
		return mediaType, []byte(payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return mediaType, data, nil
}

// Validate reports whether uri is a decodable data URI.
func Validate(uri string) error {
	_, _, err := Decode(uri)
	return err
}

// MediaType returns the declared media type without decoding the payload.
func MediaType(uri string) string {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return ""
	}
	meta, _, _ := strings.Cut(rest, ",")
	meta, _ = strings.CutSuffix(meta, ";base64")
	base, _, _ := strings.Cut(meta, ";")
	return strings.ToLower(base)
}

// KindOf classifies a stored evidence value by its media type prefix.
func KindOf(ev *string) Kind {
	if ev == nil || *ev == "" {
		return KindNone
	}
	if strings.HasPrefix(MediaType(*ev), "image/") {
		return KindImage
	}
	return KindAttachment
}

func normalizeMediaType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return defaultMediaType
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil || mt == "" {
		return defaultMediaType
	}
	return mt
}

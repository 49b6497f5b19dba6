package poller

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"sync"
)

// ProgressFunc receives the number of body bytes handed to the transport so
// far and the total body size. It is called from the goroutine reading the
// request body.
type ProgressFunc func(sent, total int64)

// Part is one file field of a multipart upload.
type Part struct {
	// FieldName is the form field name; repeated fields share a name.
	FieldName string

	// FileName is the client-side file name sent in Content-Disposition.
	FileName string

	// Size is the exact number of bytes Open will yield.
	Size int64

	// Open returns a fresh reader over the file contents.
	Open func() (io.ReadCloser, error)
}

// segment is either a literal byte run (boundaries, part headers) or a file.
type segment struct {
	data []byte
	part *Part
}

// MultipartBody is a pre-measured multipart/form-data body.
//
// Part headers and boundaries are rendered up front so the total length is
// known before any file is opened; file contents are streamed lazily.
type MultipartBody struct {
	contentType string
	size        int64
	segments    []segment
}

// NewMultipartBody lays out parts as a multipart/form-data body.
func NewMultipartBody(parts []Part) (*MultipartBody, error) {
	if len(parts) == 0 {
		return nil, errors.New("multipart body requires at least one part")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	body := &MultipartBody{contentType: mw.FormDataContentType()}
	for i := range parts {
		p := parts[i]
		if p.Open == nil {
			return nil, fmt.Errorf("part %d (%s): no content", i, p.FileName)
		}
		if p.Size < 0 {
			return nil, fmt.Errorf("part %d (%s): negative size", i, p.FileName)
		}

		if _, err := mw.CreateFormFile(p.FieldName, p.FileName); err != nil {
			return nil, fmt.Errorf("part %d (%s): %w", i, p.FileName, err)
		}
		header := bytes.Clone(buf.Bytes())
		buf.Reset()

		body.segments = append(body.segments, segment{data: header}, segment{part: &p})
		body.size += int64(len(header)) + p.Size
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}
	trailer := bytes.Clone(buf.Bytes())
	body.segments = append(body.segments, segment{data: trailer})
	body.size += int64(len(trailer))

	return body, nil
}

// ContentType returns the multipart/form-data content type with boundary.
func (b *MultipartBody) ContentType() string {
	return b.contentType
}

// Size returns the exact body length in bytes.
func (b *MultipartBody) Size() int64 {
	return b.size
}

// Reader returns a new reader over the body. progress may be nil.
func (b *MultipartBody) Reader(progress ProgressFunc) io.ReadCloser {
	readers := make([]io.Reader, 0, len(b.segments))
	files := make([]*lazyFile, 0, len(b.segments)/2)
	for _, seg := range b.segments {
		if seg.part == nil {
			readers = append(readers, bytes.NewReader(seg.data))
			continue
		}
		f := &lazyFile{part: seg.part}
		files = append(files, f)
		readers = append(readers, f)
	}

	return &progressReader{
		r:        io.MultiReader(readers...),
		total:    b.size,
		progress: progress,
		files:    files,
	}
}

// progressReader counts bytes as they are read and owns the open files.
type progressReader struct {
	r        io.Reader
	sent     int64
	total    int64
	progress ProgressFunc
	files    []*lazyFile

	closeOnce sync.Once
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.sent += int64(n)
		if p.progress != nil {
			p.progress(p.sent, p.total)
		}
	}
	return n, err
}

func (p *progressReader) Close() error {
	var err error
	p.closeOnce.Do(func() {
		for _, f := range p.files {
			err = errors.Join(err, f.close())
		}
	})
	return err
}

// errBodyClosed is returned by reads after the transport closed the body.
var errBodyClosed = errors.New("upload body closed")

// lazyFile opens its part on first read and closes it at EOF. It fails if
// the file no longer matches the size it was measured at.
//
// The transport may close the body while its write loop is still reading,
// so every field is guarded by mu and a closed file is never reopened.
type lazyFile struct {
	part *Part

	mu     sync.Mutex
	rc     io.ReadCloser
	read   int64
	done   bool
	closed bool
}

func (f *lazyFile) Read(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, errBodyClosed
	}
	if f.done {
		return 0, io.EOF
	}
	if f.rc == nil {
		rc, err := f.part.Open()
		if err != nil {
			return 0, fmt.Errorf("opening %s: %w", f.part.FileName, err)
		}
		f.rc = rc
	}

	// never hand out more than the advertised size
	if remaining := f.part.Size - f.read; int64(len(buf)) > remaining+1 {
		buf = buf[:remaining+1]
	}

	n, err := f.rc.Read(buf)
	f.read += int64(n)
	if f.read > f.part.Size {
		return 0, fmt.Errorf("%s grew during upload (expected %d bytes)", f.part.FileName, f.part.Size)
	}
	if errors.Is(err, io.EOF) {
		f.done = true
		_ = f.release()
		if f.read != f.part.Size {
			return n, fmt.Errorf("%s shrank during upload (read %d of %d bytes)", f.part.FileName, f.read, f.part.Size)
		}
	}
	return n, err
}

// close releases the file and makes later reads fail.
func (f *lazyFile) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return f.release()
}

// release closes the open reader, if any. Callers hold mu.
func (f *lazyFile) release() error {
	if f.rc == nil {
		return nil
	}
	rc := f.rc
	f.rc = nil
	return rc.Close()
}

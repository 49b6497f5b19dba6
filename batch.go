package pdfxl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jpalmerr/pdfxl/internal/poller"
)

// uploadField is the multipart field name repeated once per file.
const uploadField = "files"

// Blob is one file of a [Batch]. Content is opened lazily when the upload
// reaches it, so large batches are streamed rather than buffered.
type Blob struct {
	name string
	size int64
	open func() (io.ReadCloser, error)
}

// NewBlob creates a Blob from a name, an exact size and an opener that
// yields exactly size bytes.
//
// Returns an error if name is empty, size is negative or open is nil.
func NewBlob(name string, size int64, open func() (io.ReadCloser, error)) (Blob, error) {
	if strings.TrimSpace(name) == "" {
		return Blob{}, errors.New("blob name cannot be empty")
	}
	if size < 0 {
		return Blob{}, fmt.Errorf("blob %q: size cannot be negative", name)
	}
	if open == nil {
		return Blob{}, fmt.Errorf("blob %q: opener cannot be nil", name)
	}
	return Blob{name: name, size: size, open: open}, nil
}

// BlobFromBytes creates an in-memory Blob. The data is copied.
func BlobFromBytes(name string, data []byte) Blob {
	cp := bytes.Clone(data)
	return Blob{
		name: name,
		size: int64(len(cp)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(cp)), nil
		},
	}
}

// BlobFromFile creates a Blob backed by a file on disk. The file is stat'ed
// now and opened during upload; the name sent to the server is the base name.
func BlobFromFile(path string) (Blob, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Blob{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Blob{}, fmt.Errorf("%s is a directory", path)
	}
	return Blob{
		name: filepath.Base(path),
		size: info.Size(),
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// Name returns the file name sent to the server.
func (b Blob) Name() string {
	return b.name
}

// Size returns the content length in bytes.
func (b Blob) Size() int64 {
	return b.size
}

// Batch is the ordered set of files submitted in one request.
type Batch []Blob

// BatchFromFiles stats every path and builds a Batch in argument order.
func BatchFromFiles(paths ...string) (Batch, error) {
	batch := make(Batch, 0, len(paths))
	for _, p := range paths {
		blob, err := BlobFromFile(p)
		if err != nil {
			return nil, err
		}
		batch = append(batch, blob)
	}
	return batch, nil
}

// TotalSize returns the sum of the blob sizes.
func (b Batch) TotalSize() int64 {
	var total int64
	for _, blob := range b {
		total += blob.size
	}
	return total
}

// validate checks the batch against the allowed extensions. An empty
// allowed list accepts every name.
func (b Batch) validate(allowed []string) *Error {
	if len(b) == 0 {
		return newError(KindValidation, "", 0, nil)
	}
	for i, blob := range b {
		if blob.open == nil {
			return newError(KindValidation, "", 0, fmt.Errorf("file %d has no content", i))
		}
		if !extensionAllowed(blob.name, allowed) {
			return newError(KindValidation,
				fmt.Sprintf("%s is not a supported file type.", blob.name), 0, nil)
		}
	}
	return nil
}

func extensionAllowed(name string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

// parts converts the batch into multipart parts under the "files" field.
func (b Batch) parts() []poller.Part {
	parts := make([]poller.Part, len(b))
	for i, blob := range b {
		parts[i] = poller.Part{
			FieldName: uploadField,
			FileName:  blob.name,
			Size:      blob.size,
			Open:      blob.open,
		}
	}
	return parts
}

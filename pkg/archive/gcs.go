package archive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// gsReaderAt decorates a Google Storage object handle with ReadAt so the zip
// central directory and entries can be read with range requests.
type gsReaderAt struct {
	handle *storage.ObjectHandle
	ctx    context.Context
	size   int64
}

func (o *gsReaderAt) ReadAt(p []byte, offset int64) (int, error) {
	if offset >= o.size {
		return 0, io.EOF
	}
	length := int64(len(p))
	if offset+length > o.size {
		length = o.size - offset
	}
	rdr, err := o.handle.NewRangeReader(o.ctx, offset, length)
	if err != nil {
		return 0, err
	}
	defer rdr.Close()

	n, err := io.ReadFull(rdr, p[:length])
	if err == nil && int(length) < len(p) {
		err = io.EOF
	}
	return n, err
}

// Close is a nop: every range reader is closed after its read.
func (o *gsReaderAt) Close() error {
	return nil
}

// SplitGoogleStoragePath splits gs://bucket/object into its bucket and object
func SplitGoogleStoragePath(path string) (bucket, object string, err error) {
	parts := strings.SplitN(strings.TrimPrefix(path, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%s: expected gs://bucket/object", path)
	}
	return parts[0], parts[1], nil
}

func openGoogleStorage(ctx context.Context, path string, client *storage.Client) (ReaderAtCloser, int64, error) {
	bucket, object, err := SplitGoogleStoragePath(path)
	if err != nil {
		return nil, 0, err
	}
	handle := client.Bucket(bucket).Object(object)

	// Make a hard call to get the object size, the zip reader needs it up front
	attrs, err := handle.Attrs(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	return &gsReaderAt{handle: handle, ctx: ctx, size: attrs.Size}, attrs.Size, nil
}

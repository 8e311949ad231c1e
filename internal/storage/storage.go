package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("stored file not found")

// FileStore keeps uploaded spreadsheets until their run has been processed
type FileStore interface {
	// Save stores the content and returns a reference for Open
	Save(ctx context.Context, fileName string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}

// objectKey builds a collision-free key that keeps the original extension
func objectKey(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("%s/%s%s", time.Now().UTC().Format("2006/01/02"), uuid.New().String(), ext)
}

// Options selects and configures a FileStore
type Options struct {
	Dir    string // local directory, used when Bucket is empty
	Bucket string
	Prefix string
	Region string
}

// New returns an S3Store when a bucket is configured and a LocalStore otherwise
func New(ctx context.Context, opts Options) (FileStore, error) {
	if opts.Bucket != "" {
		return NewS3Store(ctx, S3Config{Bucket: opts.Bucket, Prefix: opts.Prefix, Region: opts.Region})
	}
	return NewLocalStore(opts.Dir)
}

package storage

import "io"

// BlobStore holds result artifacts (the per-attempt report files). Keys are
// slash-separated relative paths, e.g. "reports/<quiz>/attempt-7.csv".
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	Delete(key string) error
}

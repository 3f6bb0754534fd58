// Package datasource abstracts where scan input bytes come from.
package datasource

import (
	"context"
	"io"
)

// Source opens a readable stream of input bytes. Callers close the stream.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

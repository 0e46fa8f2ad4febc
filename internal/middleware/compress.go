package middleware

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

const (
	gzipMinSize = 512
	gzipLevel   = 6
)

// Compress gzips responses of at least 512 bytes when the client accepts it.
func Compress() (func(http.Handler) http.Handler, error) {
	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(gzipMinSize), gzhttp.CompressionLevel(gzipLevel))
	if err != nil {
		return nil, err
	}
	return func(next http.Handler) http.Handler {
		return wrap(next)
	}, nil
}

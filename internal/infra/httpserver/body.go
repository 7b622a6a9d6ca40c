package httpserver

import (
	"errors"
	"io"
	"net/http"
)

// maxBodyBytes caps uploaded CBOMs.
const maxBodyBytes = 32 << 20

func readBody(w http.ResponseWriter, req *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Join(errBadRequest, err)
	}
	return body, nil
}

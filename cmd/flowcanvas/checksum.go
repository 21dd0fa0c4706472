package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
)

// httpDoer is satisfied by *http.Client.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// errChecksum marks a download whose digest did not match the pinned one.
var errChecksum = errors.New("checksum mismatch")

// fetchVerified streams url into a temp file under dir while hashing it and
// keeps the file only if its SHA-256 equals wantSHA. The caller removes the
// returned file.
func fetchVerified(ctx context.Context, client httpDoer, url, dir, wantSHA string) (path string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	f, err := os.CreateTemp(dir, "fetch-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(f.Name())
			path = ""
		}
	}()

	sum := sha256.New()
	if _, err = io.Copy(f, io.TeeReader(resp.Body, sum)); err != nil {
		return "", err
	}
	if got := hex.EncodeToString(sum.Sum(nil)); got != wantSHA {
		return "", fmt.Errorf("%w: want %s, got %s", errChecksum, wantSHA, got)
	}
	return f.Name(), nil
}

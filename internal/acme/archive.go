package acme

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// download fetches url into w.
func download(ctx context.Context, client *http.Client, url string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	return nil
}

// extractTarGz unpacks a gzipped tarball into dst and returns the single
// top-level directory of the archive, or dst when there is none.
func extractTarGz(r io.Reader, dst string) (string, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return "", fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	tops := make(map[string]bool)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read archive: %w", err)
		}

		name := filepath.Clean(filepath.FromSlash(hdr.Name))
		if name == "." {
			continue
		}
		if filepath.IsAbs(name) || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("archive entry %q escapes destination", hdr.Name)
		}
		target := filepath.Join(dst, name)
		top := strings.SplitN(name, string(filepath.Separator), 2)[0]

		switch hdr.Typeflag {
		case tar.TypeDir:
			tops[top] = true
			if err := os.MkdirAll(target, 0755); err != nil {
				return "", err
			}
		case tar.TypeReg:
			tops[top] = true
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return "", err
			}
			if err := writeEntry(tr, target, os.FileMode(hdr.Mode).Perm()); err != nil {
				return "", err
			}
		default:
			// global pax headers and links are not part of the client sources
		}
	}

	if len(tops) == 1 {
		for top := range tops {
			if info, err := os.Stat(filepath.Join(dst, top)); err == nil && info.IsDir() {
				return filepath.Join(dst, top), nil
			}
		}
	}
	return dst, nil
}

func writeEntry(r io.Reader, path string, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

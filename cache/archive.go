package cache

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// writeArchive writes a tar.gz of paths (relative to root) to w and returns the entry count.
// Paths that do not exist are skipped.
func writeArchive(w io.Writer, root string, paths []string) (int, error) {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	count := 0
	for _, p := range paths {
		rel, err := relativePath(root, p)
		if err != nil {
			return 0, err
		}
		full := filepath.Join(root, rel)
		if _, err := os.Lstat(full); errors.Is(err, os.ErrNotExist) {
			continue
		}

		err = filepath.WalkDir(full, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			name, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}

			var link string
			if info.Mode()&os.ModeSymlink != 0 {
				if link, err = os.Readlink(path); err != nil {
					return err
				}
			}

			hdr, err := tar.FileInfoHeader(info, link)
			if err != nil {
				return err
			}
			hdr.Name = filepath.ToSlash(name)
			if d.IsDir() {
				hdr.Name += "/"
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			count++

			if !info.Mode().IsRegular() {
				return nil
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer func() {
				_ = f.Close()
			}()
			_, err = io.Copy(tw, f)
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("failed to archive %s: %w", p, err)
		}
	}

	if err := tw.Close(); err != nil {
		return 0, err
	}
	if err := gz.Close(); err != nil {
		return 0, err
	}
	return count, nil
}

// extractArchive extracts a tar.gz into root. Entries outside the requested paths are skipped;
// an empty paths list extracts everything.
func extractArchive(r io.Reader, root string, paths []string) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = gz.Close()
	}()

	allowed := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := relativePath(root, p)
		if err != nil {
			return 0, err
		}
		allowed = append(allowed, filepath.ToSlash(rel))
	}

	tr := tar.NewReader(gz)
	count := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, err
		}

		name := strings.TrimSuffix(hdr.Name, "/")
		if !withinAny(name, allowed) {
			continue
		}
		rel, err := relativePath(root, filepath.FromSlash(name))
		if err != nil {
			return count, err
		}
		target := filepath.Join(root, rel)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return count, err
			}
			if err := writeFile(target, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return count, err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return count, err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return count, err
			}
		default:
			continue
		}
		count++
	}
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// relativePath returns p relative to root, rejecting paths that escape it.
func relativePath(root, p string) (string, error) {
	rel := p
	if filepath.IsAbs(p) {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return "", err
		}
		if rel, err = filepath.Rel(absRoot, p); err != nil {
			return "", err
		}
	}
	rel = filepath.Clean(rel)
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the workspace", p)
	}
	return rel, nil
}

func withinAny(name string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "." || name == a || strings.HasPrefix(name, a+"/") {
			return true
		}
	}
	return false
}

// Package artifact packs rule outputs into cache blobs and unpacks them again. A blob
// is a zstd compressed tar stream of the rule's output directory.
package artifact

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zstd"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/zerr"
)

// artifactRecord marks tar entries recorded as rule artifacts.
const artifactRecord = "RIG.artifact"

// Compress zstd-compresses a blob. Coders are built per call so none of their internal
// channels outlive the caller.
func Compress(data []byte) []byte {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic(err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2))
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreCorrupt.Error())
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreCorrupt.Error())
	}
	return out, nil
}

// Archive packs the files below dir. Entries are written in lexical order with zeroed
// timestamps, so equal trees give equal blobs. A missing dir packs as an empty archive.
// Entries named in artifacts, relative to dir, are marked so Extract reports them.
func Archive(dir string, artifacts []string) ([]byte, error) {
	recorded := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		recorded[filepath.ToSlash(filepath.Clean(a))] = true
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipAll
			}
			return err
		}
		if path == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		return addEntry(tw, path, rel, d, recorded[rel])
	})
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrArchiveFailed.Error()), "dir", dir)
	}
	if err := tw.Close(); err != nil {
		return nil, zerr.Wrap(err, domain.ErrArchiveFailed.Error())
	}
	return Compress(buf.Bytes()), nil
}

func addEntry(tw *tar.Writer, path, rel string, d fs.DirEntry, recorded bool) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	hdr := &tar.Header{Name: rel, Mode: int64(info.Mode().Perm()), Format: tar.FormatPAX}
	if recorded {
		hdr.PAXRecords = map[string]string{artifactRecord: "1"}
	}
	switch {
	case d.IsDir():
		hdr.Typeflag = tar.TypeDir
		hdr.Name += "/"
		return tw.WriteHeader(hdr)
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = target
		return tw.WriteHeader(hdr)
	case info.Mode().IsRegular():
		hdr.Typeflag = tar.TypeReg
		hdr.Size = info.Size()
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path) //nolint:gosec // path comes from walking the output directory
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	default:
		return nil
	}
}

// Extract unpacks blob into dir, which must already be clean, and returns the sorted
// artifacts recorded by Archive. Entries escaping dir, symlinks pointing outside it and
// entries below a symlink are rejected.
func Extract(blob []byte, dir string) ([]string, error) {
	raw, err := Decompress(blob)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrMaterializeFailed.Error())
	}

	dir = filepath.Clean(dir)
	var artifacts []string
	tr := tar.NewReader(bytes.NewReader(raw))
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			slices.Sort(artifacts)
			return artifacts, nil
		}
		if err != nil {
			return nil, zerr.Wrap(err, domain.ErrMaterializeFailed.Error())
		}
		if err := extractEntry(tr, hdr, dir); err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrMaterializeFailed.Error()), "entry", hdr.Name)
		}
		if hdr.PAXRecords[artifactRecord] != "" {
			artifacts = append(artifacts, filepath.FromSlash(strings.TrimSuffix(hdr.Name, "/")))
		}
	}
}

func within(dir, p string) bool {
	return p == dir || strings.HasPrefix(p, dir+string(filepath.Separator))
}

// checkParents fails when a directory between dir and dst is a symlink.
func checkParents(dir, dst string) error {
	for p := filepath.Dir(dst); p != dir && within(dir, p); p = filepath.Dir(p) {
		info, err := os.Lstat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return zerr.With(domain.ErrOutputPathOutsideRoot, "symlink", p)
		}
	}
	return nil
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, dir string) error {
	dst := filepath.Join(dir, filepath.FromSlash(hdr.Name))
	if !within(dir, dst) {
		return domain.ErrOutputPathOutsideRoot
	}
	if err := checkParents(dir, dst); err != nil {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(dst, domain.DirPerm)
	case tar.TypeSymlink:
		if filepath.IsAbs(hdr.Linkname) || !within(dir, filepath.Join(filepath.Dir(dst), filepath.FromSlash(hdr.Linkname))) {
			return zerr.With(domain.ErrOutputPathOutsideRoot, "link", hdr.Linkname)
		}
		if err := os.MkdirAll(filepath.Dir(dst), domain.DirPerm); err != nil {
			return err
		}
		return os.Symlink(hdr.Linkname, dst)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(dst), domain.DirPerm); err != nil {
			return err
		}
		f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(hdr.Mode).Perm()) //nolint:gosec // dst is checked to stay below dir
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil { //nolint:gosec // archives are produced by Archive
			_ = f.Close()
			return err
		}
		return f.Close()
	default:
		return nil
	}
}

// Package archive reads and writes ROM archives. The pipeline only sees the
// Codec interface; ZipCodec is the implementation used for flashable zips.
package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/klauspost/compress/zip"
)

// FixedModTime is stamped on every written entry so identical trees produce
// identical archives.
var FixedModTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Entry describes one member of an archive.
type Entry struct {
	Name  string // slash-separated, relative
	Mode  fs.FileMode
	Size  int64
	IsDir bool
}

// Reader gives sequential access to the entries of an opened archive.
type Reader interface {
	Entries() []Entry
	Open(name string) (io.ReadCloser, error)
	Close() error
}

// Writer appends entries to a new archive.
type Writer interface {
	WriteDir(name string, mode fs.FileMode) error
	WriteFile(name string, mode fs.FileMode, r io.Reader) error
	Close() error
}

// Codec opens existing archives and creates new ones.
type Codec interface {
	Open(path string) (Reader, error)
	NewWriter(w io.Writer) Writer
}

// List returns the entries of the archive at path.
func List(codec Codec, path string) ([]Entry, error) {
	r, err := codec.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return r.Entries(), nil
}

// ZipCodec implements Codec for zip archives.
type ZipCodec struct{}

// Open implements Codec.
func (ZipCodec) Open(path string) (Reader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", path, err)
	}
	zr := &zipReader{rc: rc, byName: make(map[string]*zip.File, len(rc.File))}
	for _, f := range rc.File {
		zr.byName[f.Name] = f
	}
	return zr, nil
}

// NewWriter implements Codec.
func (ZipCodec) NewWriter(w io.Writer) Writer {
	return &zipWriter{zw: zip.NewWriter(w)}
}

type zipReader struct {
	rc     *zip.ReadCloser
	byName map[string]*zip.File
}

func (z *zipReader) Entries() []Entry {
	out := make([]Entry, 0, len(z.rc.File))
	for _, f := range z.rc.File {
		info := f.FileInfo()
		out = append(out, Entry{
			Name:  f.Name,
			Mode:  info.Mode(),
			Size:  int64(f.UncompressedSize64), // #nosec G115 -- sizes beyond int64 are not representable on disk anyway
			IsDir: info.IsDir(),
		})
	}
	return out
}

func (z *zipReader) Open(name string) (io.ReadCloser, error) {
	f, ok := z.byName[name]
	if !ok {
		return nil, fmt.Errorf("entry %s: %w", name, os.ErrNotExist)
	}
	return f.Open()
}

func (z *zipReader) Close() error { return z.rc.Close() }

type zipWriter struct {
	zw *zip.Writer
}

func (z *zipWriter) WriteDir(name string, mode fs.FileMode) error {
	hdr := &zip.FileHeader{Name: ensureDirSuffix(name), Method: zip.Store, Modified: FixedModTime}
	hdr.SetMode(fs.ModeDir | mode.Perm())
	_, err := z.zw.CreateHeader(hdr)
	return err
}

func (z *zipWriter) WriteFile(name string, mode fs.FileMode, r io.Reader) error {
	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: FixedModTime}
	hdr.SetMode(mode.Perm())
	w, err := z.zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	return err
}

func (z *zipWriter) Close() error { return z.zw.Close() }

func ensureDirSuffix(name string) string {
	if name == "" || name[len(name)-1] == '/' {
		return name
	}
	return name + "/"
}

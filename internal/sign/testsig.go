package sign

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/rommer/internal/archive"
	"git.home.luguber.info/inful/rommer/internal/checksum"
	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
)

// Entries written by the test signer.
const (
	ManifestEntry  = "META-INF/MANIFEST.MF"
	SignatureEntry = "META-INF/CERT.SF"
	CertEntry      = "META-INF/CERT.RSA"
)

const (
	manifestHeader  = "Manifest-Version: 1.0\nCreated-By: ROMMER\n\n"
	signatureHeader = "Signature-Version: 1.0\nCreated-By: ROMMER\n\n"
	certPlaceholder = "test_signature_placeholder"
)

// test rewrites the archive with a manifest of SHA-256 digests and
// placeholder signature files. Earlier test signatures are replaced.
func (d *Dispatcher) test(archivePath string) (string, error) {
	codec := d.Codec
	if codec == nil {
		codec = archive.ZipCodec{}
	}

	r, err := codec.Open(archivePath)
	if err != nil {
		return "", testSignError(err, "failed to open archive", archivePath)
	}
	defer func() { _ = r.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(archivePath), ".rommer-sign-*.tmp")
	if err != nil {
		return "", testSignError(err, "failed to create temporary archive", archivePath)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	w := codec.NewWriter(tmp)
	var manifest strings.Builder
	manifest.WriteString(manifestHeader)

	for _, e := range r.Entries() {
		if isSignatureEntry(e.Name) {
			continue
		}
		if e.IsDir {
			if err := w.WriteDir(e.Name, e.Mode); err != nil {
				return "", testSignError(err, "failed to copy entry", e.Name)
			}
			continue
		}
		digest, err := copyEntry(r, w, e)
		if err != nil {
			return "", testSignError(err, "failed to copy entry", e.Name)
		}
		fmt.Fprintf(&manifest, "Name: %s\nSHA-256-Digest: %s\n\n", e.Name, digest)
	}

	extras := []struct{ name, body string }{
		{ManifestEntry, manifest.String()},
		{SignatureEntry, signatureHeader},
		{CertEntry, certPlaceholder},
	}
	for _, x := range extras {
		if err := w.WriteFile(x.name, 0o644, strings.NewReader(x.body)); err != nil {
			return "", testSignError(err, "failed to write signature entry", x.name)
		}
	}

	if err := w.Close(); err != nil {
		return "", testSignError(err, "failed to finalize archive", archivePath)
	}
	if err := tmp.Close(); err != nil {
		return "", testSignError(err, "failed to close archive", archivePath)
	}
	_ = r.Close()
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return "", testSignError(err, "failed to set archive permissions", archivePath)
	}
	if err := os.Rename(tmpPath, archivePath); err != nil {
		return "", testSignError(err, "failed to replace archive", archivePath)
	}
	committed = true
	return archivePath, nil
}

func copyEntry(r archive.Reader, w archive.Writer, e archive.Entry) (string, error) {
	src, err := r.Open(e.Name)
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }()
	hw := checksum.NewWriter()
	if err := w.WriteFile(e.Name, e.Mode, io.TeeReader(src, hw)); err != nil {
		return "", err
	}
	return hw.Sum(), nil
}

func isSignatureEntry(name string) bool {
	switch name {
	case ManifestEntry, SignatureEntry, CertEntry:
		return true
	default:
		return false
	}
}

func testSignError(err error, msg, path string) error {
	return ferrors.WrapError(err, ferrors.CategorySigning, msg).WithContext("path", path).Build()
}

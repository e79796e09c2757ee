package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// sha256("hello world")
const helloDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "rom.zip")
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func TestFile(t *testing.T) {
	sum, err := File(writeFile(t, []byte("hello world")))
	require.NoError(t, err)
	require.Equal(t, helloDigest, sum)
}

func TestVerify_CaseInsensitive(t *testing.T) {
	p := writeFile(t, []byte("hello world"))
	_, err := Verify(p, strings.ToUpper(helloDigest))
	require.NoError(t, err)
}

func TestVerify_EmptyExpectedPasses(t *testing.T) {
	sum, err := Verify(writeFile(t, []byte("anything")), "")
	require.NoError(t, err)
	require.Len(t, sum, 64)
}

func TestVerify_SingleBitFlipFails(t *testing.T) {
	data := []byte("hello world")
	data[3] ^= 0x01
	_, err := Verify(writeFile(t, data), helloDigest)
	var mm *MismatchError
	require.ErrorAs(t, err, &mm)
	require.Equal(t, helloDigest, mm.Expected)
	require.NotEqual(t, helloDigest, mm.Actual)
}

func TestWriter(t *testing.T) {
	w := NewWriter()
	_, _ = w.Write([]byte("hello "))
	_, _ = w.Write([]byte("world"))
	require.Equal(t, helloDigest, w.Sum())
}

func TestFile_Missing(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "missing.zip"))
	require.Error(t, err)
}

package ocr

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/patrickjm/patsearch/internal/failure"
)

// fakeBinary writes a shell script standing in for tesseract.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script binary")
	}
	path := filepath.Join(t.TempDir(), "tesseract")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestTesseractReadsStdout(t *testing.T) {
	bin := fakeBinary(t, `cat >/dev/null; echo "WO 2020/123456 Widget"`)
	text, err := Tesseract{Binary: bin, Languages: "eng"}.Recognize(context.Background(), []byte("png"))
	require.NoError(t, err)
	require.Contains(t, text, "WO 2020/123456")
}

func TestTesseractFailure(t *testing.T) {
	bin := fakeBinary(t, `echo "bad image" >&2; exit 1`)
	_, err := Tesseract{Binary: bin}.Recognize(context.Background(), []byte("png"))
	require.ErrorIs(t, err, failure.ErrCollaboratorUnavailable)
	require.ErrorContains(t, err, "bad image")
}

func TestTesseractTimeout(t *testing.T) {
	bin := fakeBinary(t, `exec sleep 5`)
	_, err := Tesseract{Binary: bin, Timeout: 50 * time.Millisecond}.Recognize(context.Background(), []byte("png"))
	require.ErrorIs(t, err, failure.ErrCollaboratorUnavailable)
}

func TestTesseractEmptyImage(t *testing.T) {
	_, err := Tesseract{}.Recognize(context.Background(), nil)
	require.ErrorIs(t, err, failure.ErrCollaboratorUnavailable)
}

func TestMissingBinary(t *testing.T) {
	_, err := Tesseract{Binary: filepath.Join(t.TempDir(), "nope")}.Available()
	require.Error(t, err)
}

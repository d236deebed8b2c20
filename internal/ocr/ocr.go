// Package ocr turns page screenshots into text with the tesseract CLI.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/patrickjm/patsearch/internal/failure"
)

type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

type RecognizerFunc func(ctx context.Context, image []byte) (string, error)

func (f RecognizerFunc) Recognize(ctx context.Context, image []byte) (string, error) {
	return f(ctx, image)
}

type Tesseract struct {
	Binary    string
	Languages string
	Timeout   time.Duration
}

// Available reports whether the binary can be found on PATH.
func (t Tesseract) Available() (string, error) {
	return exec.LookPath(t.binary())
}

func (t Tesseract) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty image", failure.ErrCollaboratorUnavailable)
	}
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	args := []string{"stdin", "stdout"}
	if t.Languages != "" {
		args = append(args, "-l", t.Languages)
	}
	cmd := exec.CommandContext(ctx, t.binary(), args...)
	cmd.Stdin = bytes.NewReader(image)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = errors.Join(err, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%w: tesseract: %v: %s", failure.ErrCollaboratorUnavailable, err, msg)
		}
		return "", fmt.Errorf("%w: tesseract: %v", failure.ErrCollaboratorUnavailable, err)
	}
	return stdout.String(), nil
}

func (t Tesseract) binary() string {
	if t.Binary == "" {
		return "tesseract"
	}
	return t.Binary
}

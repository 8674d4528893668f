package persistence

import (
	"bytes"
	"io"
	"os"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"github.com/spf13/afero"
)

func copyFile(srcFs afero.Fs, src string, dstFs afero.Fs, dst string) error {
	errFactory := errors.New()

	in, err := srcFs.Open(src)
	if err != nil {
		return errFactory.Wrap(ErrCopyFailed, err)
	}
	defer in.Close()

	out, err := dstFs.Create(dst)
	if err != nil {
		return errFactory.Wrap(ErrCopyFailed, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errFactory.Wrap(ErrCopyFailed, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return errFactory.Wrap(ErrCopyFailed, err)
	}
	if err := out.Close(); err != nil {
		return errFactory.Wrap(ErrCopyFailed, err)
	}

	return nil
}

func verifyCopy(srcFs afero.Fs, src string, dstFs afero.Fs, dst string) error {
	errFactory := errors.New()

	want, err := afero.ReadFile(srcFs, src)
	if err != nil {
		return errFactory.Wrap(ErrVerificationFailed, err)
	}
	got, err := afero.ReadFile(dstFs, dst)
	if err != nil {
		return errFactory.Wrap(ErrVerificationFailed, err)
	}
	if !bytes.Equal(want, got) {
		return errFactory.WithData(ErrVerificationFailed, struct {
			Source      string
			Destination string
			Want, Got   int
		}{src, dst, len(want), len(got)})
	}

	return nil
}

func truncate(fs afero.Fs, path string) error {
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_TRUNC, defaultFilePerm)
	if err != nil {
		return errors.New().Wrap(ErrWriteFailed, err)
	}
	return f.Close()
}

// moveVerified copies src to dst and empties src only once dst is proven
// identical. On any failure src is left as it was.
func moveVerified(srcFs afero.Fs, src string, dstFs afero.Fs, dst string) error {
	if err := copyFile(srcFs, src, dstFs, dst); err != nil {
		return err
	}
	if err := verifyCopy(srcFs, src, dstFs, dst); err != nil {
		return err
	}
	return truncate(srcFs, src)
}

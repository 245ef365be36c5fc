package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DiskSpool holds raw uploaded chunks on local disk until the assembler
// concatenates them. Final assembled media goes to the object store; the
// spool is scratch space only.
type DiskSpool struct {
	Dir string
}

func NewDiskSpool(dir string) (*DiskSpool, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "talentis_media")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskSpool{Dir: dir}, nil
}

// Save writes one chunk and returns its path and size. seq is embedded
// zero-padded so lexical order equals arrival order.
func (s *DiskSpool) Save(attemptID int64, kind string, seq int64, r io.Reader) (string, int64, error) {
	name := fmt.Sprintf("%d_%s_%012d.chunk", attemptID, kind, seq)
	path := filepath.Join(s.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, err
	}
	return path, n, nil
}

// Concat appends the given chunk files in order into a single output file and
// returns its path. MediaRecorder-style webm segments concatenate cleanly
// because only the first carries the container header.
func (s *DiskSpool) Concat(paths []string, outName string) (string, error) {
	if len(paths) == 0 {
		return "", os.ErrNotExist
	}
	outPath := filepath.Join(s.Dir, outName)

	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	for _, p := range paths {
		in, err := os.Open(p)
		if err != nil {
			return "", err
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return "", err
		}
	}
	return outPath, nil
}

// Remove deletes the given chunk files, ignoring ones already gone.
func (s *DiskSpool) Remove(paths ...string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}

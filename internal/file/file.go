package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	appDirPerm  os.FileMode = 0o755
	logFilePerm os.FileMode = 0o644

	otherRead    os.FileMode = 0o004
	otherReadDir os.FileMode = 0o005
)

// EnsureDir creates the directory and any missing parents.
func EnsureDir(dirPath string) error {
	if dirPath == "" {
		return errors.New("empty dir path")
	}
	if err := os.MkdirAll(dirPath, appDirPerm); err != nil { //nolint:gosec // downloaded media is shared with other users
		return fmt.Errorf("ensure dir: %w", err)
	}
	return nil
}

// CreateExclusive creates filename for writing and fails if it already exists,
// so a file handed out once is never handed out again.
func CreateExclusive(filename string) (*os.File, error) {
	if filename == "" {
		return nil, errors.New("empty filename")
	}
	if err := EnsureDir(filepath.Dir(filename)); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, logFilePerm) //nolint:gosec // path is constructed by the application
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	return f, nil
}

// MakeWorldReadable adds read permission for others to every file under root and
// read+traverse permission to every directory. Symlinks are left alone.
func MakeWorldReadable(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		want := otherRead
		if d.IsDir() {
			want = otherReadDir
		}
		mode := info.Mode().Perm()
		if mode&want == want {
			return nil
		}
		if err := os.Chmod(path, mode|want); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}
		return nil
	})
}

package database

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	CredentialsFileName = "passwords.json"
	SessionsFileName    = "sessions.json"
	ArchiveDirName      = "archive"
	TLSCertFileName     = "cert.pem"
	TLSKeyFileName      = "key.pem"

	taskFilePrefix = "todos_"
	fileMode       = 0o600
)

// Layout resolves every persisted path under one data directory.
type Layout struct {
	Dir string
}

// OpenLayout creates the data and archive directories if needed.
func OpenLayout(dir string) (Layout, error) {
	if dir == "" {
		return Layout{}, errors.New("data directory is empty")
	}
	if err := os.MkdirAll(filepath.Join(dir, ArchiveDirName), 0o700); err != nil {
		return Layout{}, fmt.Errorf("create data directory: %w", err)
	}
	return Layout{Dir: dir}, nil
}

func (l Layout) CredentialsPath() string {
	return filepath.Join(l.Dir, CredentialsFileName)
}

func (l Layout) SessionsPath() string {
	return filepath.Join(l.Dir, SessionsFileName)
}

// TaskFile is the live task file for an owner key.
func (l Layout) TaskFile(ownerKey string) string {
	return filepath.Join(l.Dir, taskFilePrefix+ownerKey+".json")
}

// ArchiveFile is the destination of an archived task file.
func (l Layout) ArchiveFile(ownerKey string, at time.Time) string {
	name := taskFilePrefix + ownerKey + "_" + strconv.FormatInt(at.UnixMilli(), 10) + ".json"
	return filepath.Join(l.Dir, ArchiveDirName, name)
}

// HasTaskFile reports whether a live task file exists for the owner.
func (l Layout) HasTaskFile(ownerKey string) (bool, error) {
	return exists(l.TaskFile(ownerKey))
}

// HasArchive reports whether any archived task file exists for the owner.
func (l Layout) HasArchive(ownerKey string) (bool, error) {
	matches, err := filepath.Glob(filepath.Join(l.Dir, ArchiveDirName, taskFilePrefix+ownerKey+"_*.json"))
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// TLSFiles returns the certificate pair when both files are present.
func (l Layout) TLSFiles() (cert, key string, ok bool) {
	cert = filepath.Join(l.Dir, TLSCertFileName)
	key = filepath.Join(l.Dir, TLSKeyFileName)
	certOK, _ := exists(cert)
	keyOK, _ := exists(key)
	return cert, key, certOK && keyOK
}

// ReadFile returns the file contents, or found=false when it does not exist.
func ReadFile(path string) (data []byte, found bool, err error) {
	data, err = os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// WriteFileAtomic writes data to a temp file in the same directory and
// renames it over path, so readers never see a truncated file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, fileMode); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

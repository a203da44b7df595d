package storage

import (
	"os"
	"path/filepath"

	"github.com/kdimtricp/skysight/internal/fingerprint"
	"github.com/m-mizutani/goerr/v2"
)

type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, goerr.Wrap(err, "failed to create storage directory", goerr.V("dir", basePath))
	}
	return &LocalStorage{basePath: basePath}, nil
}

// pathFor shards files by the first two hex characters: ab/abcdef....
func (ls *LocalStorage) pathFor(fp string) (string, error) {
	if !fingerprint.Valid(fp) {
		return "", goerr.New("invalid fingerprint", goerr.V("fingerprint", fp))
	}
	return filepath.Join(ls.basePath, fp[:2], fp), nil
}

// Save writes data under fp and returns the path relative to the base
// directory. Existing files are left untouched, so repeated saves are no-ops.
func (ls *LocalStorage) Save(fp string, data []byte) (string, error) {
	fullPath, err := ls.pathFor(fp)
	if err != nil {
		return "", err
	}
	rel := filepath.Join(fp[:2], fp)

	exists, err := ls.Exists(fp)
	if err != nil {
		return "", err
	}
	if exists {
		return rel, nil
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", goerr.Wrap(err, "failed to create shard directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), fp+".*.tmp")
	if err != nil {
		return "", goerr.Wrap(err, "failed to create file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", goerr.Wrap(err, "failed to save file", goerr.V("fingerprint", fp))
	}
	if err := tmp.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to close file", goerr.V("fingerprint", fp))
	}

	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return "", goerr.Wrap(err, "failed to move file into place", goerr.V("fingerprint", fp))
	}

	return rel, nil
}

func (ls *LocalStorage) Exists(fp string) (bool, error) {
	fullPath, err := ls.pathFor(fp)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, goerr.Wrap(err, "failed to stat file", goerr.V("fingerprint", fp))
	}
	return true, nil
}

package utils

import (
	"os"
	"path"

	"github.com/Trinoooo/eggie_poll/errs"
	"github.com/pkg/errors"
)

func CheckAndCreateFile(filePath string, flag int, perm os.FileMode) (*os.File, error) {
	dir, _ := path.Split(filePath)
	if dir != "" {
		if err := CheckAndCreateDir(dir); err != nil {
			return nil, err
		}
	}

	fd, err := os.OpenFile(filePath, flag, perm)
	if err != nil {
		return nil, errs.NewOpenFileErr().WithErr(err)
	}
	return fd, nil
}

func CheckAndCreateDir(dir string) error {
	_, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		if err = os.MkdirAll(dir, 0770); err != nil {
			return errs.NewMkdirErr().WithErr(err)
		}
	} else if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return errs.NewFileNoPermissionErr().WithErr(err)
		}
		return errs.NewFileStatErr().WithErr(err)
	}
	return nil
}

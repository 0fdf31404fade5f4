package keyValStore

import (
	"errors"
	"fmt"
	"os"
)

func (sc *StoreConfig) checkConfig() error {
	if sc.Path == "" {
		return errors.New("no path provided in configuration")
	}

	info, err := os.Stat(sc.Path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(sc.Path, 0o700); err != nil {
			return fmt.Errorf("cannot create data directory: %w", err)
		}
		info, err = os.Stat(sc.Path)
		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("path is not a directory")
	}

	if sc.MinimumFreeSpace > 0 {
		free, err := freeSpaceGB(sc.Path)
		if err != nil {
			return fmt.Errorf("cannot determine free space: %w", err)
		}
		if free < sc.MinimumFreeSpace {
			return errors.New("not enough space available on disk")
		}
	}

	return nil
}

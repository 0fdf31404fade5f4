package keyValStore

import (
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// calculateDirectorySize calculates the total size of files within a directory
func calculateDirectorySize(path string) (size int64, err error) {
	err = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return
}

// displayDiskUsage logs the disk usage information for the data directory
func displayDiskUsage(path string) error {
	usage, err := disk.Usage(path)
	if err != nil {
		log.WithFields(logrus.Fields{
			"path": path,
		}).Errorf("Error retrieving disk usage stats: %v", err)
		return err
	}

	pathSize, err := calculateDirectorySize(path)
	if err != nil {
		log.WithFields(logrus.Fields{
			"path": path,
		}).Errorf("Error calculating directory size: %v", err)
		return err
	}

	log.WithFields(logrus.Fields{
		"Path":        path,
		"TotalSpace":  float64(usage.Total) / 1e9,
		"FreeSpace":   float64(usage.Free) / 1e9,
		"UsedSpace":   float64(usage.Used) / 1e9,
		"PathUsageGB": float64(pathSize) / 1e9,
	}).Info("Disk usage for data directory")

	return nil
}

// freeSpaceGB returns the free space on the filesystem holding path, in GB.
func freeSpaceGB(path string) (int, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return int(usage.Free / (1024 * 1024 * 1024)), nil
}

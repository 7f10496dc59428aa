package utils

import (
	"os"
	"path/filepath"
)

// EnsureUploadDir creates the uploads directory if it doesn't exist
func EnsureUploadDir() error {
	return os.MkdirAll(LocalStorageDir(), os.ModePerm)
}

// WriteFile writes data to destPath, creating parent directories as needed
func WriteFile(data []byte, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), os.ModePerm); err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0o644)
}

// GetUploadPath returns the full path for a key inside the uploads directory
func GetUploadPath(key string) string {
	return filepath.Join(LocalStorageDir(), filepath.FromSlash(key))
}

package util

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const writeCheckFile = ".pluginhub_write_check"

var (
	controlChars  = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	reservedChars = regexp.MustCompile(`[\\/:*?"<>|]`)
	dashRuns      = regexp.MustCompile(`-+`)
)

// Windows reserves these names regardless of extension.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// EnsureWritableDir makes sure dir exists, is a directory and accepts new
// files. Missing directories are created along with their parents.
func EnsureWritableDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("directory path cannot be empty")
	}
	clean := filepath.Clean(dir)

	info, err := os.Stat(clean)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("path exists but is not a directory: %s", clean)
	case os.IsNotExist(err):
		if err := os.MkdirAll(clean, 0755); err != nil {
			return fmt.Errorf("cannot create directory: %w", err)
		}
	case err != nil:
		return fmt.Errorf("cannot access path: %w", err)
	}

	probe := filepath.Join(clean, writeCheckFile)
	file, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("no write permission for %s: %w", clean, err)
	}
	file.Close()
	os.Remove(probe)
	return nil
}

// SanitizeFolderName turns a plugin id into a name that is safe as a single
// directory on Windows, macOS and Linux. It returns "" when nothing usable
// is left.
func SanitizeFolderName(name string) string {
	if name == "" {
		return ""
	}

	safe := controlChars.ReplaceAllString(name, "")
	safe = reservedChars.ReplaceAllString(safe, "-")
	// Leading dots would also hide the directory from the watcher.
	safe = strings.Trim(safe, " .")
	safe = dashRuns.ReplaceAllString(safe, "-")
	safe = strings.Trim(safe, "-")

	if reservedNames[strings.ToUpper(safe)] {
		safe += "_"
	}
	return safe
}

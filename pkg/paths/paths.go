package paths

import (
	"os"
	"path/filepath"
)

const appDir = "eventreporter"

// GetConfigDir returns the directory holding the params file and the
// persisted client UUID.
//
// When the home directory cannot be determined it falls back to a directory
// under the system temporary directory.
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), "."+appDir+"-config"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".config", appDir))
}

// GetDataDir returns the directory for the transmission journal and debug logs.
func GetDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), "."+appDir))
	}
	return filepath.Clean(filepath.Join(homeDir, "."+appDir))
}

// ParamsFile is the default location of the params overlay.
func ParamsFile() string {
	return filepath.Join(GetConfigDir(), "params.yaml")
}

// JournalFile is the default location of the transmission journal.
func JournalFile() string {
	return filepath.Join(GetDataDir(), "journal.db")
}

// UUIDFile is where the per-install client UUID is persisted.
func UUIDFile() string {
	return filepath.Join(GetConfigDir(), "client-uuid")
}

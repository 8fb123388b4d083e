package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// configFilePermissions is the standard permission mode for config files.
const configFilePermissions = 0o644

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// AppendRepositorySection appends a new `[repositories."ref"]` section to
// the config file at path, creating the file (with a short header comment)
// if it doesn't exist yet. Used by `locomote add`.
func AppendRepositorySection(path, ref, alias string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("reading config file: %w", err)
		}

		data = []byte("# Locomote configuration — see docs for available keys.\n")
	}

	content := string(data)
	if content != "" && content[len(content)-1] != '\n' {
		content += "\n"
	}

	content += repositorySection(ref, alias)

	return atomicWriteFile(path, []byte(content))
}

// repositorySection generates the TOML text for a new repository section.
func repositorySection(ref, alias string) string {
	section := fmt.Sprintf("\n[repositories.%q]\n", ref)
	if alias != "" {
		section += fmt.Sprintf("alias = %q\n", alias)
	}

	return section
}

// atomicWriteFile writes data to path via a temp file + rename, so a crash
// mid-write never leaves a truncated config file.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting config file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file into place: %w", err)
	}

	succeeded = true

	return nil
}

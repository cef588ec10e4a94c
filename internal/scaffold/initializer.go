// Package scaffold writes a starter accrete project: a configuration file and placeholder
// tool scripts that document the JSON contract of each external program.
package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/accrete/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// ConfigFile is the configuration file written by Initialize.
const ConfigFile = "accrete.yml"

// ToolsDir holds the placeholder tool scripts.
const ToolsDir = "tools"

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Template    string
	Permissions os.FileMode
}

// Files lists everything Initialize creates, relative to the project directory.
var Files = []FileInfo{
	{Path: ConfigFile, Template: "accrete.yml.tmpl", Permissions: 0644},
	{Path: filepath.Join(ToolsDir, "optimise.sh"), Template: "optimise.sh.tmpl", Permissions: 0755},
	{Path: filepath.Join(ToolsDir, "orient.sh"), Template: "orient.sh.tmpl", Permissions: 0755},
	{Path: filepath.Join(ToolsDir, "cluster.sh"), Template: "cluster.sh.tmpl", Permissions: 0755},
}

// Initialize creates the project structure in dir.
// If force is true, it will remove an existing accrete.yml and tools/ directory first.
func Initialize(dir string, force bool) error {
	if force {
		if err := handleForce(dir); err != nil {
			return err
		}
	} else if err := CheckExisting(dir); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(dir, ToolsDir), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", ToolsDir, err)
	}

	for _, file := range Files {
		content, err := templatesFS.ReadFile("templates/" + file.Template)
		if err != nil {
			return fmt.Errorf("failed to read %s template: %w", file.Path, err)
		}
		if err := os.WriteFile(filepath.Join(dir, file.Path), content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	// The starter config must load cleanly.
	if _, err := config.Load(filepath.Join(dir, ConfigFile)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", ConfigFile, err)
	}
	return nil
}

// handleForce removes existing files if --force was specified
func handleForce(dir string) error {
	if err := os.Remove(filepath.Join(dir, ConfigFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", ConfigFile, err)
	}
	if err := os.RemoveAll(filepath.Join(dir, ToolsDir)); err != nil {
		return fmt.Errorf("failed to remove %s/ directory: %w", ToolsDir, err)
	}
	return nil
}

// CheckExisting returns an error naming accrete.yml and tools/ if either already exists in dir.
func CheckExisting(dir string) error {
	var existing []string
	if _, err := os.Stat(filepath.Join(dir, ConfigFile)); err == nil {
		existing = append(existing, ConfigFile)
	}
	if info, err := os.Stat(filepath.Join(dir, ToolsDir)); err == nil && info.IsDir() {
		existing = append(existing, ToolsDir+"/")
	}

	if len(existing) == 0 {
		return nil
	}
	msg := "project already initialized\n\nFound existing"
	if len(existing) == 1 {
		msg += fmt.Sprintf(": %s\n", existing[0])
	} else {
		msg += " files:\n"
		for _, f := range existing {
			msg += fmt.Sprintf("  - %s\n", f)
		}
	}
	msg += "\nUse 'accrete init --force' to reinitialize (this will overwrite existing configuration)"
	return &ExistingError{msg: msg}
}

// ExistingError reports that a project is already present.
type ExistingError struct {
	msg string
}

func (e *ExistingError) Error() string { return e.msg }

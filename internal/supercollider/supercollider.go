package supercollider

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

func IsJackEnabled() bool {
	// Check for common JACK daemon process names
	jackProcessNames := []string{"jackd", "jackdbus", "jackdmp"}

	for _, processName := range jackProcessNames {
		if isProcessRunning(processName) {
			return true
		}
	}

	return false
}

func IsSuperColliderEnabled() bool {
	return isProcessRunning("sclang")
}

// Cleanup is retained for symmetry with the teacher's exit path, called from
// orchestrond's signal handler just before the process exits. It is a no-op here:
// unlike the teacher, this package never launches a synthesis process of its
// own — internal/engine.Native drives csound directly and owns that
// process's lifecycle (see internal/engine/process_unix.go).
func Cleanup() {}

func isProcessRunning(processName string) bool {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		// Exact image match on Windows is already supported by tasklist
		cmd = exec.Command("tasklist", "/FI", "IMAGENAME eq "+processName+".exe")
	default: // darwin, linux, etc.
		// Use -x for exact match of the process name (no substring matches like "jackdbus")
		cmd = exec.Command("pgrep", "-x", processName)
	}

	output, err := cmd.Output()
	if err != nil {
		return false
	}

	if runtime.GOOS == "windows" {
		out := strings.ToLower(string(output))
		return strings.Contains(out, strings.ToLower(processName+".exe"))
	}

	// pgrep returns PIDs if found; empty output means not running
	return len(strings.TrimSpace(string(output))) > 0
}

func HasRequiredExtensions() bool {
	extensions := []string{"Fverb.sc", "AnalogTape.sc", "MiBraids.sc"}

	for _, ext := range extensions {
		if !hasExtension(ext) {
			return false
		}
	}
	return true
}

func hasExtension(filename string) bool {
	extensionDirs := getSuperColliderExtensionDirs()

	for _, dir := range extensionDirs {
		// Check direct file path
		if fileExists(filepath.Join(dir, filename)) {
			return true
		}

		// Check in subdirectories recursively
		found := false
		filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if !info.IsDir() && info.Name() == filename {
				found = true
				return filepath.SkipDir
			}
			return nil
		})

		if found {
			return true
		}
	}
	return false
}

func getSuperColliderExtensionDirs() []string {
	var dirs []string

	switch runtime.GOOS {
	case "darwin":
		if homeDir, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, filepath.Join(homeDir, "Library/Application Support/SuperCollider/Extensions"))
		}
		dirs = append(dirs, "/Library/Application Support/SuperCollider/Extensions")
	case "linux":
		if homeDir, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, filepath.Join(homeDir, ".local/share/SuperCollider/Extensions"))
		}
		dirs = append(dirs, "/usr/share/SuperCollider/Extensions")
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			dirs = append(dirs, filepath.Join(localAppData, "SuperCollider/Extensions"))
		}
		if programData := os.Getenv("PROGRAMDATA"); programData != "" {
			dirs = append(dirs, filepath.Join(programData, "SuperCollider/Extensions"))
		}
	}

	return dirs
}

func fileExists(filepath string) bool {
	_, err := os.Stat(filepath)
	return !os.IsNotExist(err)
}

func DownloadRequiredExtensions() error {
	extensionDir := getLocalExtensionDir()
	if extensionDir == "" {
		return fmt.Errorf("could not determine local extension directory")
	}

	// Create extension directory if it doesn't exist
	if err := os.MkdirAll(extensionDir, 0755); err != nil {
		return fmt.Errorf("failed to create extension directory: %v", err)
	}

	// Check for PortedPlugins extensions
	if !hasExtension("Fverb.sc") || !hasExtension("AnalogTape.sc") {
		log.Printf("[SUPERCOLLIDER] downloading PortedPlugins extensions")
		downloadURL := getPortedPluginsURL()
		if downloadURL == "" {
			return fmt.Errorf("unsupported platform for PortedPlugins: %s/%s", runtime.GOOS, runtime.GOARCH)
		}

		if err := downloadAndExtract(downloadURL, extensionDir); err != nil {
			return fmt.Errorf("failed to download PortedPlugins: %v", err)
		}
		log.Printf("[SUPERCOLLIDER] PortedPlugins downloaded")
	}

	// Check for mi-UGens extensions
	if !hasExtension("MiBraids.sc") {
		log.Printf("[SUPERCOLLIDER] downloading mi-UGens extensions")
		downloadURL := getMiUGensURL()
		if downloadURL == "" {
			return fmt.Errorf("unsupported platform for mi-UGens: %s/%s", runtime.GOOS, runtime.GOARCH)
		}

		if err := downloadAndExtract(downloadURL, extensionDir); err != nil {
			return fmt.Errorf("failed to download mi-UGens: %v", err)
		}
		log.Printf("[SUPERCOLLIDER] mi-UGens downloaded")
	}

	if HasRequiredExtensions() {
		log.Printf("[SUPERCOLLIDER] all required extensions are now available")
		return nil
	}

	return fmt.Errorf("failed to install all required extensions")
}

func getPortedPluginsURL() string {
	switch runtime.GOOS {
	case "linux":
		if runtime.GOARCH == "arm" || runtime.GOARCH == "arm64" {
			return "https://github.com/schollz/portedplugins/releases/download/v0.4.6/PortedPlugins-RaspberryPi.zip"
		}
		return "https://github.com/schollz/portedplugins/releases/download/v0.4.5/PortedPlugins-Linux.zip"
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "https://github.com/schollz/portedplugins/releases/download/v0.4.5/PortedPlugins-macOS-ARM.zip"
		}
		return "https://github.com/schollz/portedplugins/releases/download/v0.4.5/PortedPlugins-macOS.zip"
	case "windows":
		return "https://github.com/schollz/portedplugins/releases/download/v0.4.5/PortedPlugins-Windows.zip"
	}
	return ""
}

func getMiUGensURL() string {
	switch runtime.GOOS {
	case "linux":
		return "https://github.com/v7b1/mi-UGens/releases/download/v0.0.8/mi-UGens-Linux.zip"
	case "darwin":
		return "https://github.com/v7b1/mi-UGens/releases/download/v0.0.8/mi-UGens-macOS.zip"
	case "windows":
		return "https://github.com/v7b1/mi-UGens/releases/download/v0.0.8/mi-UGens-Windows.zip"
	}
	return ""
}

func getLocalExtensionDir() string {
	switch runtime.GOOS {
	case "darwin":
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, "Library/Application Support/SuperCollider/Extensions")
		}
	case "linux":
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, ".local/share/SuperCollider/Extensions")
		}
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "SuperCollider/Extensions")
		}
	}
	return ""
}

func downloadAndExtract(url, destDir string) error {
	// Download the file
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to download %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: status %d", url, resp.StatusCode)
	}

	// Create temporary file
	tmpFile, err := os.CreateTemp("", "portedplugins-*.zip")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	// Copy response body to temp file
	_, err = io.Copy(tmpFile, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to save downloaded file: %v", err)
	}

	// Close temp file before reading
	tmpFile.Close()

	// Extract zip file
	return extractZip(tmpFile.Name(), destDir)
}

func extractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open zip file: %v", err)
	}
	defer r.Close()

	// Create destination directory
	os.MkdirAll(dest, 0755)

	for _, f := range r.File {
		// Create the directories for this file
		destPath := filepath.Join(dest, f.Name)

		if f.FileInfo().IsDir() {
			os.MkdirAll(destPath, f.FileInfo().Mode())
			continue
		}

		// Create the directories for this file
		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %v", err)
		}

		// Open file in zip
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open file in zip: %v", err)
		}

		// Create destination file
		destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.FileInfo().Mode())
		if err != nil {
			rc.Close()
			return fmt.Errorf("failed to create destination file: %v", err)
		}

		// Copy file contents
		_, err = io.Copy(destFile, rc)
		destFile.Close()
		rc.Close()

		if err != nil {
			return fmt.Errorf("failed to copy file contents: %v", err)
		}
	}

	return nil
}

// Package toolfinder locates the external encoder binaries optiq shells
// out to (cjpeg, pngquant, oxipng, cwebp).
package toolfinder

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ToolInfo describes a located binary.
type ToolInfo struct {
	// Name - logical tool name, e.g. "cwebp".
	Name string
	// Path - absolute path to the binary.
	Path string
	// Version - best-effort version string, "" if it couldn't be determined.
	Version string
}

// Finder locates one named external tool.
type Finder struct {
	// Name - the binary's name on PATH, e.g. "cjpeg".
	Name string
	// CustomPath - explicit override (from the config file's tool_paths).
	CustomPath string
	// EnvVar - environment variable name checked ahead of PATH.
	EnvVar string
	// VersionArgs - arguments to pass to the binary to print its version.
	// Defaults to []string{"--version"} when nil.
	VersionArgs []string
}

// New creates a Finder for name, deriving its env var as OPTIQ_<NAME>.
func New(name, customPath string) *Finder {
	return &Finder{
		Name:       name,
		CustomPath: customPath,
		EnvVar:     "OPTIQ_" + strings.ToUpper(name),
	}
}

// Find searches, in order:
//  1. CustomPath, if set
//  2. the Finder's environment variable
//  3. PATH
//  4. ./bin/<os-arch>/<name> next to the running executable
func (f *Finder) Find() (*ToolInfo, error) {
	var candidates []string

	if f.CustomPath != "" {
		candidates = append(candidates, f.CustomPath)
	}

	if envPath := os.Getenv(f.EnvVar); envPath != "" {
		candidates = append(candidates, envPath)
	}

	if pathBin, err := exec.LookPath(f.Name); err == nil {
		candidates = append(candidates, pathBin)
	}

	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		platformDir := fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
		candidates = append(candidates,
			filepath.Join(execDir, "bin", platformDir, f.binaryName()),
			filepath.Join(execDir, "bin", f.binaryName()),
			filepath.Join(execDir, f.binaryName()),
		)
	}

	for _, path := range candidates {
		if info, err := f.check(path); err == nil {
			return info, nil
		}
	}

	return nil, fmt.Errorf("%s not found. Check:\n"+
		"  1. it is installed and on PATH\n"+
		"  2. the %s environment variable\n"+
		"  3. the tool_paths.%s entry in the config file\n"+
		"  4. ./bin/<os-arch>/%s next to the optiq binary",
		f.Name, f.EnvVar, f.Name, f.binaryName())
}

func (f *Finder) check(path string) (*ToolInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("not found: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	args := f.VersionArgs
	if args == nil {
		args = []string{"--version"}
	}

	cmd := exec.Command(absPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// Some tools (pngquant without args) exit non-zero on --version;
		// treat "the binary ran" as sufficient evidence it's usable.
		if len(output) == 0 {
			return nil, fmt.Errorf("running %s --version: %w", f.Name, err)
		}
	}

	return &ToolInfo{
		Name:    f.Name,
		Path:    absPath,
		Version: parseVersion(string(output)),
	}, nil
}

// parseVersion extracts a version token from the first line of output.
func parseVersion(output string) string {
	output = strings.TrimSpace(output)
	if idx := strings.IndexByte(output, '\n'); idx >= 0 {
		output = output[:idx]
	}
	for _, prefix := range []string{"cjpeg ", "pngquant ", "oxipng ", "cwebp "} {
		if strings.HasPrefix(strings.ToLower(output), prefix) {
			return strings.TrimSpace(output[len(prefix):])
		}
	}
	return output
}

func (f *Finder) binaryName() string {
	if runtime.GOOS == "windows" {
		return f.Name + ".exe"
	}
	return f.Name
}

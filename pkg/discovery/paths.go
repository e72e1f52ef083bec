package discovery

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// Extension is the file (or bundle) extension of a CLAP plugin library.
const Extension = ".clap"

// PathEnv lists additional search directories, separated by the OS list
// separator. Its entries are searched before the standard locations.
const PathEnv = "CLAP_PATH"

// SearchPaths returns the directories a host scans for plugin libraries on
// the current platform, CLAP_PATH entries first.
func SearchPaths() []string {
	home, _ := os.UserHomeDir()
	return searchPaths(runtime.GOOS, os.Getenv(PathEnv), home, os.Getenv)
}

func searchPaths(goos, clapPath, home string, getenv func(string) string) []string {
	var paths []string
	for _, p := range filepath.SplitList(clapPath) {
		if p != "" {
			paths = append(paths, p)
		}
	}

	switch goos {
	case "darwin":
		if home != "" {
			paths = append(paths, filepath.Join(home, "Library", "Audio", "Plug-Ins", "CLAP"))
		}
		paths = append(paths, "/Library/Audio/Plug-Ins/CLAP")
	case "windows":
		if common := getenv("COMMONPROGRAMFILES"); common != "" {
			paths = append(paths, filepath.Join(common, "CLAP"))
		}
		if local := getenv("LOCALAPPDATA"); local != "" {
			paths = append(paths, filepath.Join(local, "Programs", "Common", "CLAP"))
		}
	default:
		if home != "" {
			paths = append(paths, filepath.Join(home, ".clap"))
		}
		paths = append(paths, "/usr/lib/clap", "/usr/local/lib/clap")
	}

	return dedupe(paths)
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// IsPluginPath reports whether name carries the CLAP extension.
func IsPluginPath(name string) bool {
	return filepath.Ext(name) == Extension
}

// isLibrary reports whether a walked entry is a plugin library on goos:
// bundle directories on darwin, files everywhere else. Symlinks are taken at
// their word since WalkDir does not follow them.
func isLibrary(goos string, d fs.DirEntry) bool {
	if !IsPluginPath(d.Name()) {
		return false
	}
	if d.Type()&fs.ModeSymlink != 0 {
		return true
	}
	if goos == "darwin" {
		return d.IsDir()
	}
	return d.Type().IsRegular()
}

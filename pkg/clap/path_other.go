//go:build !darwin

package clap

// bundleExecutable is the identity outside macOS: the plugin path is the
// shared library itself.
func bundleExecutable(root string) (string, error) {
	return root, nil
}

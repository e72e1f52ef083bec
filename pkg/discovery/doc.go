// Package discovery finds CLAP plugin libraries on disk.
//
// SearchPaths lists the standard per-platform locations, Scanner walks them
// concurrently, and Watcher reports libraries that appear, change or vanish.
// Nothing here loads a library; see pkg/clap for that.
package discovery

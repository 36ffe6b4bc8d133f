package catalog

import (
	"embed"
	"io/fs"
)

//go:embed descriptors
var defaultTree embed.FS

// Defaults returns the embedded built-in descriptor tree, used to seed the
// descriptor store on first boot and as a source in tests.
func Defaults() fs.FS {
	sub, err := fs.Sub(defaultTree, "descriptors")
	if err != nil {
		// The subtree is compiled in; failure here is a build defect.
		panic(err)
	}
	return sub
}

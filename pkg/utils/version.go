// Package utils holds the small helpers shared by the folio binaries: build
// metadata and display truncation.
package utils

// Build metadata, stamped at link time with
// -ldflags "-X github.com/papercomputeco/folio/pkg/utils.Version=v1.2.3".
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// UserAgent identifies folio to model providers and the page image store.
func UserAgent() string {
	return "folio/" + Version + " (" + Sha + ")"
}

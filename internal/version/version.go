package version

// Set by -ldflags "-X filecatalog/internal/version.Version=...".
var Version = "dev"

func String() string {
	if Version == "" {
		return "dev"
	}
	return Version
}

package buildinfo

import "fmt"

// Set with -ldflags "-X ottoroute/internal/buildinfo.Version=..."
var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
}

// String is the one-line form printed by -version.
func String() string {
	s := "ottoroute " + Version
	if Commit != "" {
		s += fmt.Sprintf(" (%s)", Commit)
	}
	if BuiltAt != "" {
		s += " built " + BuiltAt
	}
	return s
}

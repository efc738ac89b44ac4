package settings

import "fmt"

// Backend identifies which persistence mechanism a Store resolved to.
type Backend int

const (
	// BackendPrimary is the typed synchronized store.
	BackendPrimary Backend = iota
	// BackendSecondary is the byte-valued synchronized store.
	BackendSecondary
	// BackendLocal is the string-only fallback, available in every host
	// environment.
	BackendLocal
)

func (b Backend) String() string {
	switch b {
	case BackendPrimary:
		return "primary"
	case BackendSecondary:
		return "secondary"
	case BackendLocal:
		return "local"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// ParseBackend maps a configuration string to a Backend. "auto" (or the
// empty string) reports auto=true, meaning the caller should probe the
// environment instead of forcing one backend.
func ParseBackend(s string) (b Backend, auto bool, err error) {
	switch s {
	case "", "auto":
		return 0, true, nil
	case "primary":
		return BackendPrimary, false, nil
	case "secondary":
		return BackendSecondary, false, nil
	case "local":
		return BackendLocal, false, nil
	default:
		return 0, false, fmt.Errorf("unknown backend %q (want auto, primary, secondary, or local)", s)
	}
}

package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

// goos is swapped in tests to exercise each platform branch.
var goos = func() string { return runtime.GOOS }

// browserCommand maps a platform to its URL-open launcher. An empty name
// means the platform has none.
func browserCommand(platform string) (string, []string) {
	switch platform {
	case "darwin":
		return "open", nil
	case "linux":
		return "xdg-open", nil
	case "windows":
		return "cmd", []string{"/c", "start"}
	}
	return "", nil
}

// OpenBrowser sends the user's browser to url. The login flow uses it to
// reach Spotify's consent page without copy-pasting the authorize URL.
func OpenBrowser(url string) error {
	name, args := browserCommand(goos())
	if name == "" {
		return fmt.Errorf("no browser launcher for platform %s", goos())
	}

	if err := exec.Command(name, append(args, url)...).Start(); err != nil {
		return fmt.Errorf("could not launch browser: %w", err)
	}
	return nil
}

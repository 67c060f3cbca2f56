package gmail

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"mailsweep/internal/model"
)

// OpenReference opens an HTTP(S) unsubscribe reference in the user's default
// browser, for the manual path when automation is not wanted. Mailto
// references are rejected; they go through the send fallback instead.
func OpenReference(ref model.UnsubscribeReference) error {
	switch ref.Kind {
	case model.RefHeaderOneClick, model.RefHTTPLink:
		return OpenBrowser(ref.Value)
	default:
		return fmt.Errorf("reference kind %s cannot be opened in a browser", ref.Kind)
	}
}

func OpenBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler", url}
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	// Validate URL scheme to prevent command injection
	lower := strings.ToLower(url)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return fmt.Errorf("refusing to open non-HTTP URL: %s", url)
	}

	return exec.Command(cmd, args...).Start()
}

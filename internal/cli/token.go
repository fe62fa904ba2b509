package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoToken is returned when no token is configured and none can be prompted for.
var ErrNoToken = errors.New("no portal token: set PORTAL_TOKEN or run from a terminal")

// ResolveToken returns configured if set, otherwise prompts on the terminal
// without echoing input.
func ResolveToken(configured string, in *os.File, out io.Writer) (string, error) {
	if configured != "" {
		return configured, nil
	}
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNoToken
	}

	fmt.Fprint(out, "Portal token: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

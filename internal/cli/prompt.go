package cli

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// promptSigningKey asks for a signing key on the terminal without echo. When
// stdin is not a terminal there is nothing to ask; the resolver reports the
// missing environment variable instead.
func promptSigningKey(envName string) (string, error) {
	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return "", nil
	}

	fmt.Fprintf(os.Stderr, "Environment variable %s is not set.\nEnter signing key (input hidden): ", envName)
	byteKey, err := term.ReadPassword(stdinFd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading signing key: %w", err)
	}
	return strings.TrimSpace(string(byteKey)), nil
}

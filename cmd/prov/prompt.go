package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// passphraseEnv lets scripts supply the passphrase without a terminal.
const passphraseEnv = "PROV_PASSPHRASE"

func readPassphrase(cmd *cobra.Command, prompt string) (string, error) {
	if pw := os.Getenv(passphraseEnv); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("cannot prompt for a passphrase: stdin is not a terminal (set %s)", passphraseEnv)
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pw), nil
}

// newPassphrase asks twice and requires both answers to match.
func newPassphrase(cmd *cobra.Command) (string, error) {
	pw, err := readPassphrase(cmd, "New passphrase: ")
	if err != nil {
		return "", err
	}
	if os.Getenv(passphraseEnv) != "" {
		return pw, nil
	}
	again, err := readPassphrase(cmd, "Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if pw != again {
		return "", errors.New("passphrases do not match")
	}
	return pw, nil
}

// confirm asks a yes/no question unless --yes was given. Without a terminal
// the answer is no.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return true, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("%s: pass --yes to confirm non-interactively", question)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N] ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

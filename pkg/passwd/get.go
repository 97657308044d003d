package passwd

import (
	"fmt"
	"os"
	"os/signal"

	"golang.org/x/term"
)

// entirely based on MIT code from Joe Linoff
// https://gist.github.com/jlinoff/e8e26b4ffa38d379c7f1891fd174a6d0
// edited for style

// GetPassword prompts for a password on the terminal without echoing it.
func GetPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal")
	}

	// Get the initial state of the terminal.
	state, err := term.GetState(fd)
	if err != nil {
		return "", err
	}

	// Restore it in the event of an interrupt.
	// CITATION: Konstantin Shaposhnikov - https://groups.google.com/forum/#!topic/golang-nuts/kTVAbtee9UA
	c := make(chan os.Signal, 1)
	cancel := make(chan struct{})
	signal.Notify(c, os.Interrupt)
	go func() {
		select {
		case <-c:
			_ = term.Restore(fd, state)
			os.Exit(1)
		case <-cancel:
		}
	}()

	// prompt the user for the password
	fmt.Print(prompt)
	p, err := term.ReadPassword(fd)
	fmt.Println("")

	// stop looking for ^C on the channel.
	signal.Stop(c)
	// close the waiting goroutine
	close(cancel)

	if err != nil {
		return "", err
	}

	// Return the password as a string.
	return string(p), nil
}

// Confirm prompts twice and fails if the entries differ.
func Confirm(prompt string) (string, error) {
	p1, err := GetPassword(prompt)
	if err != nil {
		return "", err
	}
	p2, err := GetPassword("again: ")
	if err != nil {
		return "", err
	}
	if p1 != p2 {
		return "", fmt.Errorf("passwords do not match")
	}
	if p1 == "" {
		return "", fmt.Errorf("empty password")
	}
	return p1, nil
}

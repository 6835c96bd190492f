// Package gitops is the thin version-control glue: stage and commit the
// document after a successful step when the configuration asks for it.
package gitops

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Commit stages one file and commits it with the given message. A clean tree
// (nothing staged) is not an error.
func Commit(path, message string) error {
	if err := run("git", "add", "--", path); err != nil {
		return err
	}

	staged, err := output("git", "diff", "--cached", "--name-only", "--", path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(staged) == "" {
		return nil
	}

	return run("git", "commit", "-m", message, "--", path)
}

func run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func output(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return string(out), nil
}

// Package testing provides test utilities for CLI commands.
package testing

import (
	"bytes"
	"os"
	"testing"

	"github.com/spf13/cobra"
)

// ExecuteCommand runs a cobra command with the given arguments and returns the output.
func ExecuteCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

// ExecuteCommandWithErr runs a cobra command and captures stdout and stderr separately.
func ExecuteCommandWithErr(root *cobra.Command, args ...string) (stdout string, stderr string, err error) {
	stdoutBuf := new(bytes.Buffer)
	stderrBuf := new(bytes.Buffer)
	root.SetOut(stdoutBuf)
	root.SetErr(stderrBuf)
	root.SetArgs(args)

	err = root.Execute()
	return stdoutBuf.String(), stderrBuf.String(), err
}

// CreateTempFile creates a temporary protocol file with the given content
// and returns its path. The caller is responsible for removing the file.
func CreateTempFile(t *testing.T, content string) string {
	t.Helper()

	f, err := os.CreateTemp("", "alhs-test-*.alp")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		t.Fatalf("failed to write to temp file: %v", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		t.Fatalf("failed to close temp file: %v", err)
	}

	return f.Name()
}

// CreateTempFileWithExt creates a temporary file with given extension and content.
func CreateTempFileWithExt(t *testing.T, ext, content string) string {
	t.Helper()

	f, err := os.CreateTemp("", "alhs-test-*"+ext)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		t.Fatalf("failed to write to temp file: %v", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		t.Fatalf("failed to close temp file: %v", err)
	}

	return f.Name()
}

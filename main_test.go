package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"4096", 4096, true},
		{"0x1000", 4096, true},
		{"4K", 4096, true},
		{"16M", 16 * 1024 * 1024, true},
		{"32m", 32 * 1024 * 1024, true},
		{"", 0, false},
		{"12Q", 0, false},
	}

	for _, tc := range tests {
		got, err := parseSize(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("parseSize(%q) = %d, %v", tc.in, got, err)
		}
	}
}

func runCommand(t *testing.T, args ...string) error {
	t.Helper()

	root := newRootCommand()
	root.SetArgs(append([]string{"--transport", "sim", "--capacity", "64K"}, args...))
	return root.Execute()
}

func TestCommandsOnSimulator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.bin")
	if err := os.WriteFile(path, []byte("firmware"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := runCommand(t, "write", "0x1010", path); err != nil {
		t.Errorf("write: %v", err)
	}
	if err := runCommand(t, "erase", "4K", "8K"); err != nil {
		t.Errorf("erase: %v", err)
	}
	if err := runCommand(t, "erase", "--chip"); err != nil {
		t.Errorf("chip erase: %v", err)
	}
	if err := runCommand(t, "erase", "100", "4K"); err == nil {
		t.Error("misaligned erase accepted")
	}
	if err := runCommand(t, "read", "0", "64", "-o", filepath.Join(t.TempDir(), "dump.bin")); err != nil {
		t.Errorf("read: %v", err)
	}
	if err := runCommand(t, "read", "64K", "1"); err == nil {
		t.Error("read past the end accepted")
	}
	if err := runCommand(t, "--family", "z", "status"); err == nil {
		t.Error("unknown family accepted")
	}
}

package utils

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestSafeWriteFileCreatesDirAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "charts", "out.csv")
	if err := SafeWriteFile(path, []byte("a\n")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := SafeWriteFile(path, []byte("b\n")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "b\n" {
		t.Errorf("content = %q", got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestPrettyJSON(t *testing.T) {
	b, err := PrettyJSON(map[string]int{"a": 1})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "{\n  \"a\": 1\n}" {
		t.Errorf("got %q", b)
	}
	if _, err := PrettyJSON(math.NaN()); err == nil {
		t.Errorf("expected error for NaN")
	}
}

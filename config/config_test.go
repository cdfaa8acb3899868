package config

import (
	"os"
	"testing"
)

type testDoc struct {
	Entries map[string]string `yaml:"entries"`
	Pick    string            `yaml:"pick,omitempty"`
}

func TestLoadMissingFileReturnsZero(t *testing.T) {
	doc := NewDocument[testDoc](Dir(t.TempDir()), "absent.yaml")
	v, err := doc.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v.Entries != nil || v.Pick != "" {
		t.Fatalf("expected zero value, got %+v", v)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	doc := NewDocument[testDoc](Dir(t.TempDir()), "nested/dir/doc.yaml")

	want := testDoc{Entries: map[string]string{"a": "1", "b": "2"}, Pick: "a"}
	if err := doc.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := doc.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Pick != want.Pick || len(got.Entries) != 2 || got.Entries["a"] != "1" || got.Entries["b"] != "2" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// load(save(load())) == load()
	if err := doc.Save(got); err != nil {
		t.Fatalf("Save(2): %v", err)
	}
	again, err := doc.Load()
	if err != nil {
		t.Fatalf("Load(2): %v", err)
	}
	if again.Pick != got.Pick || len(again.Entries) != len(got.Entries) {
		t.Fatalf("save/load not stable: %+v vs %+v", again, got)
	}
}

func TestLoadFailsOnCorruptDocument(t *testing.T) {
	dir := Dir(t.TempDir())
	doc := NewDocument[testDoc](dir, "broken.yaml")
	if err := os.WriteFile(doc.Path, []byte("entries: [not: a: map"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := doc.Load(); err == nil {
		t.Fatalf("Load should fail on parse error")
	}
}

//go:build !no_automation

package automation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hall Light", "hall_light"},
		{"  Night -- mode!! ", "night_mode"},
		{"", ""},
		{strings.Repeat("a", 60), strings.Repeat("a", 40)},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidScriptID(t *testing.T) {
	for _, id := range []string{"", ".", "..", "a/b", `a\b`, "../x"} {
		if validScriptID(id) {
			t.Errorf("validScriptID(%q) = true", id)
		}
	}
	if !validScriptID("hall_light") {
		t.Error("hall_light should be valid")
	}
}

func TestManagerSaveGetList(t *testing.T) {
	m, err := NewManager(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	s1, err := m.Save(&Script{Meta: ScriptMeta{Name: "Hall", Enabled: true}, LuaCode: `node.log("a")`})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	s2, err := m.Save(&Script{Meta: ScriptMeta{Name: "Hall"}, LuaCode: `node.log("b")`})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if s1.ID != "hall" || s2.ID != "hall_1" {
		t.Errorf("ids = %q, %q", s1.ID, s2.ID)
	}

	got, err := m.Get("hall")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Meta.Enabled || got.Meta.Name != "Hall" {
		t.Errorf("meta = %+v", got.Meta)
	}
	if got.LuaCode != "node.log(\"a\")\n" {
		t.Errorf("code = %q", got.LuaCode)
	}

	list, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "hall" || list[1].ID != "hall_1" {
		t.Errorf("list = %v", list)
	}
}

func TestManagerFileWithoutMeta(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "plain.lua"), []byte("node.log(\"x\")\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(dir, testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	list, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("list = %v", list)
	}
	s := list[0]
	if s.ID != "plain" || s.Meta.Name != "plain" || !s.Meta.Enabled {
		t.Errorf("script = %+v", s)
	}
}

func TestManagerDelete(t *testing.T) {
	m, err := NewManager(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := m.Save(&Script{ID: "gone", LuaCode: "x = 1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := m.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get("gone"); err == nil {
		t.Error("expected error after delete")
	}
	if err := m.Delete("gone"); err == nil {
		t.Error("expected error deleting twice")
	}
}

func TestManagerRejectsTraversal(t *testing.T) {
	m, err := NewManager(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := m.Get("../etc/passwd"); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Get err = %v", err)
	}
	if _, err := m.Save(&Script{ID: "a/b"}); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Save err = %v", err)
	}
	if err := m.Delete(".."); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Delete err = %v", err)
	}
}

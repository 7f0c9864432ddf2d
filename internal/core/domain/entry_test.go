package domain

import (
	"testing"
	"time"
)

func TestNewEntry(t *testing.T) {
	now := time.Now()
	e := NewEntry([]byte("hi"), now)

	if e.Size != 2 {
		t.Errorf("Size = %d, want 2", e.Size)
	}
	if !e.CreatedAt.Equal(now) || !e.UpdatedAt.Equal(now) {
		t.Errorf("timestamps = (%v, %v), want both %v", e.CreatedAt, e.UpdatedAt, now)
	}
}

func TestEntry_Update(t *testing.T) {
	created := time.Now()
	e := NewEntry([]byte("hi"), created)

	later := created.Add(time.Second)
	u := e.Update([]byte("bye"), later)

	if string(u.Value) != "bye" || u.Size != 3 {
		t.Errorf("Update value = (%q, %d), want (bye, 3)", u.Value, u.Size)
	}
	if !u.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", u.CreatedAt, created)
	}
	if !u.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", u.UpdatedAt, later)
	}
	if string(e.Value) != "hi" {
		t.Error("Update must not modify the receiver")
	}
}

func TestEntry_UpdateAdvancesOnClockStall(t *testing.T) {
	now := time.Now()
	e := NewEntry([]byte("a"), now)

	u := e.Update([]byte("b"), now)
	if !u.UpdatedAt.After(u.CreatedAt) {
		t.Errorf("UpdatedAt %v should be after CreatedAt %v", u.UpdatedAt, u.CreatedAt)
	}

	back := u.Update([]byte("c"), now.Add(-time.Hour))
	if !back.UpdatedAt.After(u.UpdatedAt) {
		t.Errorf("UpdatedAt went backwards: %v -> %v", u.UpdatedAt, back.UpdatedAt)
	}
}

func TestEntry_Clone(t *testing.T) {
	e := NewEntry([]byte("value"), time.Now())
	c := e.Clone()

	c.Value[0] = 'X'
	if string(e.Value) != "value" {
		t.Errorf("Clone shares value bytes: original = %q", e.Value)
	}

	var nilEntry *Entry
	if nilEntry.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestResultStrings(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{Created.String(), "created"},
		{Updated.String(), "updated"},
		{Deleted.String(), "deleted"},
		{NotFound.String(), "not_found"},
		{PutResult(0).String(), "unknown"},
		{DeleteResult(0).String(), "unknown"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}

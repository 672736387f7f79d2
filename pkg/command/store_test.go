package command

import (
	"testing"
	"time"
)

func TestMemoryStoreMergeAndDelete(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Save("c:u", ContextValues{"color": "blue", "size": "L"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save("c:u", ContextValues{"color": "red", "size": ""}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ := s.Load("c:u")
	if len(got) != 1 || got["color"] != "red" {
		t.Fatalf("Load = %v, want only color=red", got)
	}

	// 返回副本，修改不影响存储
	got["color"] = "green"
	again, _ := s.Load("c:u")
	if again["color"] != "red" {
		t.Fatalf("stored value changed through Load copy: %v", again)
	}

	_ = s.Save("c:u", ContextValues{"color": ""})
	if got, _ := s.Load("c:u"); got != nil {
		t.Fatalf("emptied entry should be removed, got %v", got)
	}
	if got, _ := s.Load(""); got != nil {
		t.Fatalf("empty key Load = %v", got)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(WithTTL(time.Minute), WithStoreClock(func() time.Time { return now }))

	_ = s.Save("k", ContextValues{"a": "1"})
	now = now.Add(50 * time.Second)
	// 写入续期
	_ = s.Save("k", ContextValues{"b": "2"})
	now = now.Add(50 * time.Second)
	got, _ := s.Load("k")
	if got["a"] != "1" || got["b"] != "2" {
		t.Fatalf("Load before expiry = %v", got)
	}

	// 读取不续期
	now = now.Add(10 * time.Second)
	if got, _ := s.Load("k"); got != nil {
		t.Fatalf("Load after expiry = %v, want nil", got)
	}
	if len(s.entries) != 0 {
		t.Fatalf("expired entry not purged: %d left", len(s.entries))
	}
}

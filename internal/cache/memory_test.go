package cache

import (
	"testing"
	"time"
)

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(20 * time.Millisecond)
	defer c.Close()

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v.(int) != 1 {
		t.Fatalf("Get(a) = %v, %v; want 1, true", v, ok)
	}

	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Error("expected entry to expire")
	}
}

func TestMemoryCacheNoTTL(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	c.Set("a", "x")
	c.Set("b", "y")
	if c.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", c.Size())
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted entry still present")
	}

	c.Clear()
	if c.Size() != 0 {
		t.Errorf("Size() after Clear = %d, want 0", c.Size())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	c.Close()
	c.Close()
}

func TestArtworkCache(t *testing.T) {
	ac := NewArtworkCache()
	defer ac.Close()

	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	id := ac.Put(png, "")
	if id == "" {
		t.Fatal("expected an artwork id")
	}
	if again := ac.Put(png, ""); again != id {
		t.Errorf("same content produced different ids: %s vs %s", id, again)
	}
	if ac.Size() != 1 {
		t.Errorf("Size() = %d, want 1", ac.Size())
	}

	art, ok := ac.Artwork(id)
	if !ok {
		t.Fatal("artwork not found")
	}
	if art.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want image/png", art.MIMEType)
	}

	if _, ok := ac.Artwork("missing"); ok {
		t.Error("unexpected artwork for unknown id")
	}
}

func TestDetectImageType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0}, "image/jpeg"},
		{"gif", []byte("GIF89a.."), "image/gif"},
		{"short", []byte{0xFF}, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectImageType(tt.data); got != tt.want {
				t.Errorf("DetectImageType() = %q, want %q", got, tt.want)
			}
		})
	}
}

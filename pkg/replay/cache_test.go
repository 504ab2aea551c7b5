package replay

import (
	"testing"
	"time"
)

func cacheKey(b byte) [32]byte {
	var key [32]byte
	key[0] = b
	return key
}

func TestCacheSeen(t *testing.T) {
	cache := NewCache(2, time.Minute)

	if replayed, _ := cache.Seen(cacheKey(1)); replayed {
		t.Fatalf("expected first key to be new")
	}
	if replayed, _ := cache.Seen(cacheKey(1)); !replayed {
		t.Fatalf("expected key to be replayed")
	}
	if replayed, _ := cache.Seen(cacheKey(2)); replayed {
		t.Fatalf("expected second key to be new")
	}
	if replayed, evicted := cache.Seen(cacheKey(3)); replayed || evicted == 0 {
		t.Fatalf("expected eviction when capacity exceeded")
	}
	if cache.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", cache.Len())
	}

	// Key 1 was the least recently seen, so it made room for key 3.
	if replayed, _ := cache.Seen(cacheKey(1)); replayed {
		t.Fatalf("evicted key should read as new")
	}
}

func TestCacheSeenRefreshesOrder(t *testing.T) {
	cache := NewCache(2, time.Minute)
	cache.Seen(cacheKey(1))
	cache.Seen(cacheKey(2))
	// Touch key 1 so key 2 becomes the eviction candidate.
	cache.Seen(cacheKey(1))
	cache.Seen(cacheKey(3))

	if replayed, _ := cache.Seen(cacheKey(1)); !replayed {
		t.Fatalf("refreshed key should survive eviction")
	}
	if replayed, _ := cache.Seen(cacheKey(2)); replayed {
		t.Fatalf("stale key should have been evicted")
	}
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCache(8, time.Minute)
	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }

	if replayed, _ := cache.Seen(cacheKey(1)); replayed {
		t.Fatalf("expected first key to be new")
	}
	now = now.Add(30 * time.Second)
	if replayed, _ := cache.Seen(cacheKey(1)); !replayed {
		t.Fatalf("expected key inside validity to be replayed")
	}
	now = now.Add(2 * time.Minute)
	if replayed, evicted := cache.Seen(cacheKey(1)); replayed || evicted != 1 {
		t.Fatalf("expected expired key to read as new, got replayed=%v evicted=%d", replayed, evicted)
	}
}

func TestCacheExpiredTailEviction(t *testing.T) {
	cache := NewCache(8, time.Minute)
	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }

	cache.Seen(cacheKey(1))
	cache.Seen(cacheKey(2))
	now = now.Add(2 * time.Minute)
	if _, evicted := cache.Seen(cacheKey(3)); evicted != 2 {
		t.Fatalf("expected both expired keys evicted, got %d", evicted)
	}
	if cache.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", cache.Len())
	}
}

func TestCacheDefaults(t *testing.T) {
	cache := NewCache(0, 0)
	if cache.capacity != DefaultCacheCapacity {
		t.Fatalf("capacity = %d, want %d", cache.capacity, DefaultCacheCapacity)
	}
	if cache.validity != DefaultValidity {
		t.Fatalf("validity = %v, want %v", cache.validity, DefaultValidity)
	}
}

func TestCacheReset(t *testing.T) {
	cache := NewCache(8, time.Minute)
	cache.Seen(cacheKey(1))
	cache.Seen(cacheKey(2))
	cache.Reset()
	if cache.Len() != 0 {
		t.Fatalf("Len() = %d after Reset", cache.Len())
	}
	if replayed, _ := cache.Seen(cacheKey(1)); replayed {
		t.Fatalf("reset cache should forget keys")
	}
}

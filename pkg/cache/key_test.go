package cache

import "testing"

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{name: "small id", key: CacheKey{EntryID: 1}, want: "fpl:entry:1:leagues"},
		{name: "large id", key: CacheKey{EntryID: 9876543}, want: "fpl:entry:9876543:leagues"},
		{name: "zero id", key: CacheKey{}, want: "fpl:entry:0:leagues"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("CacheKey.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

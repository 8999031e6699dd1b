package framebuf

import (
	"runtime"
	"sync"
	"testing"
)

func TestGetPut_ExactSize(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"64K", 65536},
		{"256K", 262144},
		{"1M", 1048576},
		{"4M", 4194304},
		{"500B", 500},
		{"3000B", 3000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Get(tt.size)
			if len(b) != tt.size {
				t.Errorf("Get(%d): len = %d, want %d", tt.size, len(b), tt.size)
			}
			Put(b)
		})
	}
}

func TestGetPut_LargeCapacity(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		minCap int
	}{
		{"bucket0_exact", 65536, 65536},
		{"bucket0_small", 100, 65536},
		{"bucket1_exact", 262144, 262144},
		{"bucket1_mid", 131072, 262144},
		{"bucket2_exact", 1048576, 1048576},
		{"bucket3_exact", 4194304, 4194304},
		{"bucket4_exact", 16777216, 16777216},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Get(tt.size)
			if cap(b) < tt.minCap {
				t.Errorf("Get(%d): cap = %d, want >= %d", tt.size, cap(b), tt.minCap)
			}
			Put(b)
		})
	}
}

func TestGet_LargeSize(t *testing.T) {
	largeSize := 20 * 1048576
	b := Get(largeSize)
	if len(b) != largeSize {
		t.Errorf("Get(%d): len = %d, want %d", largeSize, len(b), largeSize)
	}
	if cap(b) < largeSize {
		t.Errorf("Get(%d): cap = %d, want >= %d", largeSize, cap(b), largeSize)
	}
	Put(b)
}

func TestPut_SmallSlice(t *testing.T) {
	small := make([]byte, 100)
	Put(small) // Should not panic.

	tiny := make([]byte, 0, 10)
	Put(tiny) // Should not panic.

	b := Get(Size64K)
	if len(b) != Size64K {
		t.Errorf("Get(%d) after small Put: len = %d, want %d", Size64K, len(b), Size64K)
	}
	Put(b)
}

func TestPut_NilSlice(t *testing.T) {
	Put(nil) // Should not panic (cap is 0, which is < Size64K).
}

func TestBucketIndex(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		wantBucket int
		wantMinCap int
	}{
		{"1->bucket0", 1, 0, Size64K},
		{"65536->bucket0", 65536, 0, Size64K},
		{"65537->bucket1", 65537, 1, Size256K},
		{"262144->bucket1", 262144, 1, Size256K},
		{"262145->bucket2", 262145, 2, Size1M},
		{"1048576->bucket2", 1048576, 2, Size1M},
		{"1048577->bucket3", 1048577, 3, Size4M},
		{"4194304->bucket3", 4194304, 3, Size4M},
		{"4194305->bucket4", 4194305, 4, Size16M},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := bucketIndex(tt.size)
			if idx != tt.wantBucket {
				t.Errorf("bucketIndex(%d) = %d, want %d", tt.size, idx, tt.wantBucket)
			}
		})
	}
}

func TestReuse(t *testing.T) {
	const size = 1048576
	b := Get(size)
	if len(b) != size {
		t.Fatalf("Get(%d): len = %d", size, len(b))
	}
	b[0] = 0xAB
	b[size-1] = 0xAB
	Put(b)

	runtime.GC()

	b2 := Get(size)
	if len(b2) != size {
		t.Fatalf("Get(%d) after reuse: len = %d", size, len(b2))
	}
	Put(b2)
}

func TestConcurrency(t *testing.T) {
	const goroutines = 32
	const iterations = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				for _, size := range []int{65536, 262144, 1048576, 4194304} {
					b := Get(size)
					if len(b) != size {
						t.Errorf("concurrent Get(%d): len = %d", size, len(b))
						return
					}
					for j := range b {
						b[j] = byte(j)
					}
					Put(b)
				}
			}
		}()
	}

	wg.Wait()
}

package bufpool

import (
	"sync"
	"testing"
)

func TestGet_SizeClasses(t *testing.T) {
	p := NewPool()

	tests := []struct {
		size    int
		wantCap int
	}{
		{0, MinSize},
		{1, MinSize},
		{64, 64},
		{65, 128},
		{4096, 4096},
		{4097, 8192},
		{MaxSize, MaxSize},
	}
	for _, tt := range tests {
		buf := p.Get(tt.size)
		if len(buf) != tt.size {
			t.Errorf("Get(%d): len = %d", tt.size, len(buf))
		}
		if cap(buf) != tt.wantCap {
			t.Errorf("Get(%d): cap = %d, want %d", tt.size, cap(buf), tt.wantCap)
		}
		p.Put(buf)
	}
}

func TestGet_Oversized(t *testing.T) {
	p := NewPool()

	buf := p.Get(MaxSize + 1)
	if len(buf) != MaxSize+1 {
		t.Fatalf("len = %d", len(buf))
	}
	p.Put(buf)

	st := p.Stats()
	if st.Oversized != 1 {
		t.Errorf("Oversized = %d, want 1", st.Oversized)
	}
	if st.Puts != 0 {
		t.Errorf("oversized buffer was pooled: Puts = %d", st.Puts)
	}
}

func TestPut_IgnoresForeignSlices(t *testing.T) {
	p := NewPool()

	p.Put(nil)
	p.Put(make([]byte, 100))
	p.Put(make([]byte, 32))

	if st := p.Stats(); st.Puts != 0 {
		t.Errorf("Puts = %d, want 0", st.Puts)
	}
}

func TestClone(t *testing.T) {
	p := NewPool()
	src := []byte("page contents")

	buf := p.Clone(src)
	if string(buf) != string(src) {
		t.Fatalf("Clone = %q", buf)
	}
	src[0] = 'X'
	if buf[0] != 'p' {
		t.Error("Clone shares memory with its source")
	}
}

func TestConcurrentGetPut(t *testing.T) {
	p := NewPool()
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				size := 64 << ((g + i) % 8)
				buf := p.Get(size)
				buf[0] = byte(i)
				buf[size-1] = byte(i)
				p.Put(buf)
			}
		}()
	}
	wg.Wait()

	if st := p.Stats(); st.Gets != 1600 || st.Puts != 1600 {
		t.Errorf("Stats = %+v, want 1600 gets and puts", st)
	}
}

func BenchmarkGetPut(b *testing.B) {
	p := NewPool()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			p.Put(p.Get(4096))
		}
	})
}

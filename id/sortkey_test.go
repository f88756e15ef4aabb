package id_test

import (
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/creditledger/id"
)

func TestSequence(t *testing.T) {
	seq := id.NewSequence(41)
	if got := seq.Next(); got != 42 {
		t.Errorf("Next: got %d, want 42", got)
	}
	var zero id.Sequence
	if got := zero.Next(); got != 1 {
		t.Errorf("zero-value Next: got %d, want 1", got)
	}
}

func TestSortKeysSameMillisecond(t *testing.T) {
	fixed := time.UnixMilli(1_760_572_800_000)
	gen := id.NewSortKeyGenerator(id.NewSequence(0), func() time.Time { return fixed })

	keys := make([]string, 100)
	for i := range keys {
		keys[i] = gen.Next()
	}

	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("keys not increasing at %d: %q >= %q", i, keys[i-1], keys[i])
		}
	}
	if !strings.HasPrefix(keys[0], "1760572800000-0000000000000001-") {
		t.Errorf("unexpected key layout: %q", keys[0])
	}
	if len(keys[0]) != len("1760572800000-0000000000000001-")+8 {
		t.Errorf("unexpected key length: %q", keys[0])
	}
}

func TestSortKeysAcrossMilliseconds(t *testing.T) {
	seq := id.NewSequence(1 << 40)
	early := id.NewSortKeyGenerator(seq, nil).At(time.UnixMilli(1000))
	late := id.NewSortKeyGenerator(id.NewSequence(0), nil).At(time.UnixMilli(1001))
	if early >= late {
		t.Errorf("expected %q < %q", early, late)
	}
}

func TestSortKeysConcurrentUnique(t *testing.T) {
	fixed := time.UnixMilli(1_760_572_800_000)
	gen := id.NewSortKeyGenerator(id.NewSequence(0), func() time.Time { return fixed })

	const workers, per = 8, 250
	var (
		mu   sync.Mutex
		keys []string
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, per)
			for i := range local {
				local[i] = gen.Next()
			}
			mu.Lock()
			keys = append(keys, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Strings(keys)
	for i := 1; i < len(keys); i++ {
		if keys[i-1] == keys[i] {
			t.Fatalf("duplicate sort key %q", keys[i])
		}
	}
	if len(keys) != workers*per {
		t.Errorf("got %d keys, want %d", len(keys), workers*per)
	}
}

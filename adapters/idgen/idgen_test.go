package idgen_test

import (
	"regexp"
	"sync"
	"testing"

	"github.com/artpar/awsapigw/adapters/idgen"
)

func TestUUID_New(t *testing.T) {
	id := idgen.UUID{}.New()

	uuidRegex := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	if !uuidRegex.MatchString(id) {
		t.Errorf("ID %s doesn't match UUID v4 format", id)
	}
}

func TestKeyID_New(t *testing.T) {
	g := idgen.KeyID{}
	keyRegex := regexp.MustCompile(`^[0-9a-f]{10}$`)

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := g.New()
		if !keyRegex.MatchString(id) {
			t.Fatalf("ID %q doesn't match key ID format", id)
		}
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestSequential_New(t *testing.T) {
	g := idgen.NewSequential("key-")

	if got := g.New(); got != "key-1" {
		t.Errorf("first ID = %s, want key-1", got)
	}
	if got := g.New(); got != "key-2" {
		t.Errorf("second ID = %s, want key-2", got)
	}
}

func TestSequential_Concurrent(t *testing.T) {
	g := idgen.NewSequential("")

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.New()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Errorf("unique IDs = %d, want 50", len(seen))
	}
}

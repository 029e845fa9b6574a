package stat

import (
	"sync"
	"testing"
)

func TestCounterFloorsAtZero(t *testing.T) {
	c := NewCounter(1)
	c.Incr()
	if c.Int() != 2 {
		t.Fatalf("counter: except: 2, got: %d", c.Int())
	}
	c.Decr()
	c.Decr()
	c.Decr()
	if c.Int() != 0 {
		t.Fatalf("counter: except: floor at 0, got: %d", c.Int())
	}
	if c.String() != "0" {
		t.Fatalf("counter: except: \"0\", got: %q", c.String())
	}
}

func TestCounterConcurrentIncr(t *testing.T) {
	c := NewCounter(0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Incr()
		}()
	}
	wg.Wait()
	if c.Int() != 100 {
		t.Fatalf("counter: except: 100 after concurrent incr, got: %d", c.Int())
	}
}

func TestPairStat(t *testing.T) {
	var stat = NewPairStat()
	stat.ClientsWaiting.Incr()
	stat.ClientsWaiting.Incr()
	stat.Paired.Incr()
	if stat.String() != "clients=2,workers=0,paired=1" {
		t.Fatalf("PairStat: except: clients=2,workers=0,paired=1, got: %s\n", stat)
	}
}

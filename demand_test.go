package fstream_test

import (
	"sync"
	"testing"

	"github.com/nuln/fstream"
)

func TestDemandCounter(t *testing.T) {
	var d fstream.DemandCounter
	if old := d.Add(3); old != 0 {
		t.Fatalf("Add returned %d, want 0", old)
	}
	if left := d.Produced(2); left != 1 {
		t.Fatalf("Produced returned %d, want 1", left)
	}
	d.Add(fstream.Unbounded - 5)
	if d.Get() != fstream.Unbounded-4 {
		t.Fatalf("Get = %d, want %d", d.Get(), fstream.Unbounded-4)
	}
	d.Add(fstream.Unbounded - 1)
	if d.Get() != fstream.Unbounded {
		t.Fatalf("Get = %d, want saturation", d.Get())
	}
	if old := d.Add(1); old != fstream.Unbounded {
		t.Fatalf("Add after saturation returned %d", old)
	}
	if left := d.Produced(100); left != fstream.Unbounded {
		t.Fatal("unbounded demand must not be decremented")
	}
}

func TestDemandCounterOverproduction(t *testing.T) {
	var d fstream.DemandCounter
	d.Add(1)
	defer func() {
		if _, ok := recover().(fstream.ProtocolViolation); !ok {
			t.Fatal("expected a ProtocolViolation")
		}
	}()
	d.Produced(2)
}

func TestDemandCounterConcurrentAdd(t *testing.T) {
	var d fstream.DemandCounter
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				d.Add(1)
			}
		}()
	}
	wg.Wait()
	if d.Get() != 8000 {
		t.Fatalf("Get = %d, want 8000", d.Get())
	}
}

func TestReadRange(t *testing.T) {
	tests := []struct {
		rng  fstream.ReadRange
		size int64
		want fstream.ReadRange
	}{
		{fstream.ReadRange{Offset: 0, Length: 10}, 10, fstream.ReadRange{Offset: 0, Length: 10}},
		{fstream.ReadRange{Offset: 5, Length: 100}, 10, fstream.ReadRange{Offset: 5, Length: 5}},
		{fstream.ReadRange{Offset: 20, Length: 5}, 10, fstream.ReadRange{Offset: 10, Length: 0}},
		{fstream.ReadRange{Offset: 1, Length: fstream.Unbounded}, 10, fstream.ReadRange{Offset: 1, Length: 9}},
	}
	for _, tt := range tests {
		if got := tt.rng.Clamp(tt.size); got != tt.want {
			t.Errorf("%v.Clamp(%d) = %v, want %v", tt.rng, tt.size, got, tt.want)
		}
	}
	if (fstream.ReadRange{Offset: 1, Length: fstream.Unbounded}).End() != fstream.Unbounded {
		t.Error("End should saturate")
	}
	if (fstream.ReadRange{Offset: 0, Length: -1}).Validate() == nil {
		t.Error("negative length should not validate")
	}
}

package sink

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/motorwatch/motorwatch/internal/wire"
	"github.com/motorwatch/motorwatch/pkg/types"
)

// collector is a minimal in-test alert collector: it accepts one connection
// and decodes every alert frame it receives.
func collector(t *testing.T) (addr string, alerts <-chan types.AlertEvent) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	ch := make(chan types.AlertEvent, 64)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		dec := wire.NewDecoder(conn)
		for {
			ev, err := dec.Alert()
			if err != nil {
				return
			}
			ch <- ev
		}
	}()
	return ln.Addr().String(), ch
}

func recv(t *testing.T, ch <-chan types.AlertEvent) types.AlertEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for alert")
		return types.AlertEvent{}
	}
}

func TestSend_DeliversAlert(t *testing.T) {
	addr, alerts := collector(t)

	s, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer s.Close()

	want := types.AlertEvent{MotorID: 2, Timestamp: 1700000100.5, Value: 123.5}
	s.Send(want)

	if got := recv(t, alerts); got != want {
		t.Errorf("alert = %+v, want %+v", got, want)
	}
}

func TestSend_ConcurrentWritersDoNotInterleave(t *testing.T) {
	addr, alerts := collector(t)

	s, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer s.Close()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(motor uint32) {
			defer wg.Done()
			s.Send(types.AlertEvent{MotorID: motor, Timestamp: 1, Value: 1})
		}(uint32(i))
	}
	wg.Wait()

	// Every frame must decode cleanly — interleaved writes would corrupt the
	// COBS stream and kill the collector's decode loop.
	seen := make(map[uint32]bool, n)
	for i := 0; i < n; i++ {
		seen[recv(t, alerts).MotorID] = true
	}
	if len(seen) != n {
		t.Errorf("decoded alerts from %d motors, want %d", len(seen), n)
	}
}

func TestSend_FailureDropsEventWithoutPanic(t *testing.T) {
	addr, _ := collector(t)

	s, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	s.Close()

	// Sending on a closed sink must neither panic nor return an error to the
	// caller — the event is simply dropped.
	s.Send(types.AlertEvent{MotorID: 1, Timestamp: 2, Value: 3})
}

func TestDial_UnreachableCollector(t *testing.T) {
	// A loopback port with nothing listening.
	s, err := Dial("127.0.0.1:1")
	if err == nil {
		t.Skip("something is listening on port 1")
	}
	// The returned sink is disconnected but usable.
	s.Send(types.AlertEvent{MotorID: 0, Timestamp: 0, Value: 0})
	if cerr := s.Close(); cerr != nil {
		t.Errorf("Close on disconnected sink: %v", cerr)
	}
}

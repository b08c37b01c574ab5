package transport

import (
	"net"
	"testing"
	"time"
)

// startLoop runs l on a background goroutine and returns a stopper.
func startLoop(l *EventLoop) func() {
	go l.Run()
	return l.Stop
}

func TestPostRunsInOrder(t *testing.T) {
	l := NewLoop()
	defer startLoop(l)()

	got := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		l.Post(func() { got <- i })
	}
	for want := 0; want < 3; want++ {
		select {
		case v := <-got:
			if v != want {
				t.Fatalf("got %d, want %d", v, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for posted work")
		}
	}
}

func TestPostAfterStopDropped(t *testing.T) {
	l := NewLoop()
	go l.Run()
	l.Stop()
	time.Sleep(10 * time.Millisecond)
	// Must not panic or block.
	l.Post(func() { t.Error("work ran after Stop") })
	time.Sleep(20 * time.Millisecond)
}

func TestTimerFires(t *testing.T) {
	l := NewLoop()
	defer startLoop(l)()

	fired := make(chan time.Duration, 1)
	start := l.Now()
	l.Post(func() {
		tm := l.NewTimer()
		tm.Start(30*time.Millisecond, func() { fired <- l.Now() - start })
	})

	select {
	case d := <-fired:
		if d < 25*time.Millisecond {
			t.Errorf("timer fired after %v, want >= 30ms", d)
		}
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestTimerStop(t *testing.T) {
	l := NewLoop()
	defer startLoop(l)()

	fired := make(chan struct{}, 1)
	l.Post(func() {
		tm := l.NewTimer()
		tm.Start(20*time.Millisecond, func() { fired <- struct{}{} })
		tm.Stop()
	})

	select {
	case <-fired:
		t.Error("stopped timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTimerRestartReplacesDeadline(t *testing.T) {
	l := NewLoop()
	defer startLoop(l)()

	fired := make(chan string, 2)
	l.Post(func() {
		tm := l.NewTimer()
		tm.Start(20*time.Millisecond, func() { fired <- "first" })
		tm.Start(60*time.Millisecond, func() { fired <- "second" })
	})

	select {
	case v := <-fired:
		if v != "second" {
			t.Errorf("got %q, want %q", v, "second")
		}
	case <-time.After(time.Second):
		t.Fatal("restarted timer never fired")
	}
}

func TestTimerClose(t *testing.T) {
	l := NewLoop()
	defer startLoop(l)()

	closed := make(chan struct{}, 1)
	l.Post(func() {
		tm := l.NewTimer()
		tm.Start(10*time.Millisecond, func() {})
		tm.Close(func() { closed <- struct{}{} })
		if !tm.IsClosing() {
			t.Error("IsClosing = false after Close")
		}
	})

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close callback never fired")
	}
}

func TestSocketSendRecv(t *testing.T) {
	// A raw UDP echo peer.
	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer peer.Close()
	go func() {
		buf := make([]byte, 1024)
		for {
			n, addr, err := peer.ReadFromUDP(buf)
			if err != nil {
				return
			}
			peer.WriteToUDP(buf[:n], addr)
		}
	}()

	l := NewLoop()
	defer startLoop(l)()

	sock, err := l.OpenUDP(peer.LocalAddr().String())
	if err != nil {
		t.Fatalf("OpenUDP: %v", err)
	}

	sent := make(chan error, 1)
	got := make(chan []byte, 1)
	l.Post(func() {
		sock.StartRecv(func(data []byte) {
			cp := make([]byte, len(data))
			copy(cp, data)
			got <- cp
		})
		sock.Send([]byte("ping"), func(err error) { sent <- err })
	})

	select {
	case err := <-sent:
		if err != nil {
			t.Fatalf("send completion: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("send completion never fired")
	}
	select {
	case data := <-got:
		if string(data) != "ping" {
			t.Errorf("received %q, want %q", data, "ping")
		}
	case <-time.After(time.Second):
		t.Fatal("echo never received")
	}

	closed := make(chan struct{}, 1)
	l.Post(func() { sock.Close(func() { closed <- struct{}{} }) })
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("socket close callback never fired")
	}
}

func TestSocketStopRecv(t *testing.T) {
	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer peer.Close()

	l := NewLoop()
	defer startLoop(l)()

	sock, err := l.OpenUDP(peer.LocalAddr().String())
	if err != nil {
		t.Fatalf("OpenUDP: %v", err)
	}

	got := make(chan []byte, 1)
	var local net.Addr
	done := make(chan struct{})
	l.Post(func() {
		sock.StartRecv(func(data []byte) { got <- data })
		sock.StopRecv()
		close(done)
	})
	<-done

	// Find our local address by sending a probe to the peer.
	probe := make(chan struct{})
	l.Post(func() {
		sock.Send([]byte("probe"), func(error) { close(probe) })
	})
	<-probe
	buf := make([]byte, 64)
	peer.SetReadDeadline(time.Now().Add(time.Second))
	_, addr, err := peer.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	local = addr

	// Datagrams sent after StopRecv must not be delivered.
	peer.WriteToUDP([]byte("late"), local.(*net.UDPAddr))
	select {
	case <-got:
		t.Error("datagram delivered after StopRecv")
	case <-time.After(100 * time.Millisecond):
	}

	l.Post(func() { sock.Close(func() {}) })
}

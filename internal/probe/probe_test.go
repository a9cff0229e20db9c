package probe

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	ncerr "pscan/internal/errors"
	"pscan/internal/payload"
	"pscan/util"
)

func TestModeLabels(t *testing.T) {
	tests := []struct {
		mode    Mode
		label   string
		network string
	}{
		{Stream, "TCP", "tcp"},
		{Datagram, "UDP", "udp"},
	}
	for _, tt := range tests {
		// Pure: repeated calls give the same answer.
		for i := 0; i < 3; i++ {
			if got := tt.mode.String(); got != tt.label {
				t.Errorf("%d.String() = %q, want %q", int(tt.mode), got, tt.label)
			}
		}
		if got := tt.mode.Network(); got != tt.network {
			t.Errorf("%d.Network() = %q, want %q", int(tt.mode), got, tt.network)
		}
	}

	for _, m := range Modes() {
		if l := m.String(); l != "TCP" && l != "UDP" {
			t.Errorf("Modes() produced label %q", l)
		}
	}
	if got := Modes(); len(got) != 2 || got[0] != Stream || got[1] != Datagram {
		t.Errorf("Modes() = %v, want [TCP UDP]", got)
	}
	if _, err := Mode(7).MarshalText(); err == nil {
		t.Error("MarshalText should reject an unknown mode")
	}
}

func TestResult_JSON(t *testing.T) {
	r := NewResult(Datagram, 53, StatusOpen)
	if !r.Reachable {
		t.Fatal("open result should be reachable")
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"protocol":"UDP","port":53,"reachable":true,"status":"open"}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}

	var back Result
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != r {
		t.Errorf("round trip = %+v, want %+v", back, r)
	}
	if err := json.Unmarshal([]byte(`{"protocol":"SCTP"}`), &back); err == nil {
		t.Error("unknown protocol label should not decode")
	}

	if NewResult(Stream, 22, StatusTimeout).Reachable {
		t.Error("timeout result should not be reachable")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, StatusOpen},
		{"refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, StatusClosed},
		{"deadline", context.DeadlineExceeded, StatusTimeout},
		{"etimedout", syscall.ETIMEDOUT, StatusTimeout},
		{"host unreachable", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.EHOSTUNREACH)}, StatusUnreachable},
		{"dns", &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true}, StatusUnreachable},
		{"other", errors.New("connection reset"), StatusFiltered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

// ── stream ───────────────────────────────────────────────────────────

func TestProbe_StreamReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	p := &Prober{Timeout: 2 * time.Second}
	port := ln.Addr().(*net.TCPAddr).Port

	ok, err := p.Probe(context.Background(), Stream, Address{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !ok {
		t.Errorf("port %d with a listener should be reachable", port)
	}
}

func TestProbe_StreamClosed(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}

	p := &Prober{Timeout: 2 * time.Second}
	addr := Address{Host: "127.0.0.1", Port: port}

	ok, err := p.Probe(context.Background(), Stream, addr)
	if err != nil {
		t.Fatalf("a closed port is not an anomaly: %v", err)
	}
	if ok {
		t.Errorf("port %d without a listener should not be reachable", port)
	}

	st, err := p.Check(context.Background(), Stream, addr)
	if err != nil {
		t.Fatal(err)
	}
	if st != StatusClosed {
		t.Errorf("status = %s, want closed", st)
	}
}

func TestProbe_StreamBadHost(t *testing.T) {
	p := &Prober{Timeout: 2 * time.Second}
	ok, err := p.Probe(context.Background(), Stream, Address{Host: "host.invalid", Port: 80})
	if err != nil {
		t.Fatalf("resolution failure is not an anomaly: %v", err)
	}
	if ok {
		t.Error("unresolvable host should not be reachable")
	}
}

// ── datagram ─────────────────────────────────────────────────────────

// udpServer answers every datagram with reply, or swallows it when
// reply is nil.  It records the last payload it saw.
func udpServer(t *testing.T, reply []byte) (int, *atomic.Value) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pc.Close() })

	var seen atomic.Value
	go func() {
		buf := make([]byte, 1024)
		for {
			n, from, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			seen.Store(string(buf[:n]))
			if reply != nil {
				pc.WriteTo(reply, from) //nolint:errcheck
			}
		}
	}()
	return pc.LocalAddr().(*net.UDPAddr).Port, &seen
}

func TestProbe_DatagramReply(t *testing.T) {
	port, seen := udpServer(t, []byte("pong"))

	p := &Prober{Timeout: 2 * time.Second}
	ok, err := p.Probe(context.Background(), Datagram, Address{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !ok {
		t.Error("port that replies should be reachable")
	}
	if got, _ := seen.Load().(string); got != payload.DefaultMarker {
		t.Errorf("server saw %q, want %q", got, payload.DefaultMarker)
	}
}

func TestProbe_DatagramSilent(t *testing.T) {
	port, _ := udpServer(t, nil)

	p := &Prober{Timeout: 150 * time.Millisecond}
	start := time.Now()
	st, err := p.Check(context.Background(), Datagram, Address{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("silence is not an anomaly: %v", err)
	}
	if st != StatusTimeout {
		t.Errorf("status = %s, want timeout", st)
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Errorf("probe took %v, timeout not honoured", took)
	}
}

func TestProbe_DatagramNoListener(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := pc.LocalAddr().(*net.UDPAddr).Port
	pc.Close()

	p := &Prober{Timeout: 500 * time.Millisecond}
	ok, err := p.Probe(context.Background(), Datagram, Address{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("port unreachable is not an anomaly: %v", err)
	}
	if ok {
		t.Error("port without a listener should not be reachable")
	}
}

func TestProbe_DatagramCustomPayload(t *testing.T) {
	port, seen := udpServer(t, []byte("ok"))

	p := &Prober{Timeout: 2 * time.Second, Payload: payload.Marker("hello")}
	if ok, err := p.Probe(context.Background(), Datagram, Address{Host: "127.0.0.1", Port: port}); err != nil || !ok {
		t.Fatalf("Probe = %v, %v", ok, err)
	}
	if got, _ := seen.Load().(string); got != "hello" {
		t.Errorf("server saw %q, want %q", got, "hello")
	}
}

func TestProbe_DatagramCancel(t *testing.T) {
	port, _ := udpServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	p := &Prober{Timeout: 10 * time.Second}
	start := time.Now()
	ok, err := p.Probe(ctx, Datagram, Address{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("cancellation is not an anomaly: %v", err)
	}
	if ok {
		t.Error("cancelled probe should not be reachable")
	}
	if took := time.Since(start); took > 5*time.Second {
		t.Errorf("cancel did not unblock the read (took %v)", took)
	}
}

// ── anomalies ────────────────────────────────────────────────────────

// stubDialer fails every dial with err, or hands out conn.
type stubDialer struct {
	err  error
	conn net.Conn
}

func (d *stubDialer) Dial(context.Context, string, string) (net.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func (d *stubDialer) Close() error { return nil }

// closeTracker records whether Close was called.
type closeTracker struct {
	net.Conn
	closed atomic.Bool
}

func (c *closeTracker) Close() error {
	c.closed.Store(true)
	return c.Conn.Close()
}

func TestProbe_ResourceExhaustion(t *testing.T) {
	emfile := &net.OpError{Op: "dial", Net: "udp", Err: os.NewSyscallError("socket", syscall.EMFILE)}

	for _, mode := range Modes() {
		t.Run(mode.String(), func(t *testing.T) {
			d := &stubDialer{err: emfile}
			p := &Prober{Stream: d, Datagram: d}

			ok, err := p.Probe(context.Background(), mode, Address{Host: "127.0.0.1", Port: 9})
			if ok {
				t.Error("anomaly should not report reachable")
			}
			var pe *ncerr.ProbeError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ProbeError, got %T: %v", err, err)
			}
			if pe.Port != 9 || pe.Protocol != mode.String() {
				t.Errorf("ProbeError = %+v", pe)
			}
			if !errors.Is(err, syscall.EMFILE) {
				t.Error("EMFILE should stay reachable through the wrap")
			}
		})
	}
}

func TestProbe_UnsupportedTransport(t *testing.T) {
	p := &Prober{Datagram: &stubDialer{err: ncerr.ErrUnsupported}}
	_, err := p.Check(context.Background(), Datagram, Address{Host: "127.0.0.1", Port: 53})
	if !errors.Is(err, ncerr.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

func TestProbe_PayloadFailure(t *testing.T) {
	boom := errors.New("encode failed")
	p := &Prober{Payload: func(int) ([]byte, error) { return nil, boom }}

	_, err := p.Probe(context.Background(), Datagram, Address{Host: "127.0.0.1", Port: 161})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want payload error", err)
	}
}

func TestProbe_UnknownMode(t *testing.T) {
	var p Prober
	_, err := p.Probe(context.Background(), Mode(9), Address{Host: "127.0.0.1", Port: 1})
	if !errors.Is(err, ncerr.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

func TestProbe_EmptyHost(t *testing.T) {
	d := &stubDialer{err: errors.New("dialer must not be reached")}
	p := &Prober{Stream: d, Datagram: d}
	for _, mode := range Modes() {
		_, err := p.Check(context.Background(), mode, Address{Port: 80})
		if !errors.Is(err, ncerr.ErrEmptyHost) {
			t.Errorf("%s: err = %v, want ErrEmptyHost", mode, err)
		}
		var pe *ncerr.ProbeError
		if !errors.As(err, &pe) || pe.Port != 80 {
			t.Errorf("%s: expected *ProbeError for port 80, got %T", mode, err)
		}
	}
}

func TestProbe_ReleasesSocket(t *testing.T) {
	t.Run("stream success", func(t *testing.T) {
		client, server := net.Pipe()
		defer server.Close()
		conn := &closeTracker{Conn: client}

		p := &Prober{Stream: &stubDialer{conn: conn}}
		if ok, err := p.Probe(context.Background(), Stream, Address{Host: "x", Port: 1}); err != nil || !ok {
			t.Fatalf("Probe = %v, %v", ok, err)
		}
		if !conn.closed.Load() {
			t.Error("stream conn not closed")
		}
	})

	t.Run("datagram write failure", func(t *testing.T) {
		client, server := net.Pipe()
		server.Close() // writes to client now fail
		conn := &closeTracker{Conn: client}

		p := &Prober{Datagram: &stubDialer{conn: conn}, Timeout: time.Second}
		ok, err := p.Probe(context.Background(), Datagram, Address{Host: "x", Port: 1})
		if err != nil || ok {
			t.Fatalf("Probe = %v, %v; want false, nil", ok, err)
		}
		if !conn.closed.Load() {
			t.Error("datagram conn not closed after failed write")
		}
	})
}

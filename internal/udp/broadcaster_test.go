package udp

import (
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"tiltgame/internal/game"
	"tiltgame/internal/geom"
	"tiltgame/internal/motion"
)

type fakeConn struct {
	writes    [][]byte
	writeErr  error
	closed    bool
	closeErr  error
	writeHits int
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.writeHits++
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	cp := append([]byte(nil), p...)
	c.writes = append(c.writes, cp)
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return c.closeErr
}

func TestNewBroadcaster_DialsResolvedAddr(t *testing.T) {
	var gotNetwork string
	var gotRaddr *net.UDPAddr
	fc := &fakeConn{}

	resolve := func(network, address string) (*net.UDPAddr, error) {
		return net.ResolveUDPAddr(network, address)
	}

	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		gotNetwork = network
		gotRaddr = raddr
		return fc, nil
	}

	b, err := newBroadcaster("127.0.0.1:4000", resolve, dial)
	if err != nil {
		t.Fatalf("newBroadcaster() error: %v", err)
	}
	defer b.Close()

	if gotNetwork != "udp" {
		t.Fatalf("network=%q want %q", gotNetwork, "udp")
	}
	if gotRaddr == nil || gotRaddr.Port != 4000 || !gotRaddr.IP.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Fatalf("raddr=%v want 127.0.0.1:4000", gotRaddr)
	}
	if b.Dest() != "127.0.0.1:4000" {
		t.Fatalf("dest=%q", b.Dest())
	}
}

func TestNewBroadcaster_ResolveFailure(t *testing.T) {
	resolveErr := errors.New("nope")
	resolve := func(network, address string) (*net.UDPAddr, error) {
		return nil, resolveErr
	}
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return &fakeConn{}, nil
	}

	_, err := newBroadcaster("bad:addr", resolve, dial)
	if !errors.Is(err, resolveErr) {
		t.Fatalf("err=%v want %v", err, resolveErr)
	}
}

func TestBroadcaster_Send_EmptyNoWrite(t *testing.T) {
	fc := &fakeConn{}
	b := &Broadcaster{dest: "x", conn: fc}

	if err := b.Send(nil); err != nil {
		t.Fatalf("Send(nil) error: %v", err)
	}
	if fc.writeHits != 0 {
		t.Fatalf("expected no writes, got %d", fc.writeHits)
	}
}

func TestBroadcaster_PublishFrame_EncodesDatagram(t *testing.T) {
	fc := &fakeConn{}
	b := &Broadcaster{dest: "x", conn: fc}

	b.PublishFrame(game.Frame{
		Seq:         4,
		Position:    geom.Point{X: 155, Y: 297},
		Inside:      true,
		Orientation: motion.Level,
		PitchDeg:    3,
	})
	if len(fc.writes) != 1 {
		t.Fatalf("writes=%d", len(fc.writes))
	}
	var d Datagram
	if err := json.Unmarshal(fc.writes[0], &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := Datagram{Type: "frame", Seq: 4, X: 155, Y: 297, Inside: true, Orientation: motion.Level, PitchDeg: 3}
	if d != want {
		t.Fatalf("datagram=%+v want %+v", d, want)
	}
	if sent, failed := b.Stats(); sent != 1 || failed != 0 {
		t.Fatalf("sent=%d failed=%d", sent, failed)
	}
}

func TestBroadcaster_DecimatesFramesNotAdvisories(t *testing.T) {
	fc := &fakeConn{}
	b := &Broadcaster{dest: "x", conn: fc, every: 3}

	for i := 1; i <= 7; i++ {
		b.PublishFrame(game.Frame{Seq: uint64(i)})
	}
	b.PublishAdvisory(motion.Advisory{Message: motion.AdvisoryNotLevel, PitchDeg: 14, At: time.Now()})
	b.PublishAdvisory(motion.Advisory{Message: motion.AdvisoryNotLevel, PitchDeg: 15, At: time.Now()})

	var seqs []uint64
	advisories := 0
	for _, w := range fc.writes {
		var d Datagram
		if err := json.Unmarshal(w, &d); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		switch d.Type {
		case "frame":
			seqs = append(seqs, d.Seq)
		case "advisory":
			advisories++
			if d.Message != "Not Horizontal" || d.Orientation != motion.Tilted {
				t.Fatalf("advisory=%+v", d)
			}
		}
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[1] != 4 || seqs[2] != 7 {
		t.Fatalf("frame seqs=%v", seqs)
	}
	if advisories != 2 {
		t.Fatalf("advisories=%d", advisories)
	}
}

func TestBroadcaster_SendFailureCounted(t *testing.T) {
	fc := &fakeConn{writeErr: errors.New("connection refused")}
	b := &Broadcaster{dest: "x", conn: fc}

	b.PublishFrame(game.Frame{Seq: 1})
	b.PublishFrame(game.Frame{Seq: 2})
	if sent, failed := b.Stats(); sent != 0 || failed != 2 {
		t.Fatalf("sent=%d failed=%d", sent, failed)
	}
}

func TestBroadcaster_Close_NilConnNoPanic(t *testing.T) {
	b := &Broadcaster{}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

func TestNewBroadcaster_Loopback(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer pc.Close()

	b, err := NewBroadcaster(pc.LocalAddr().String(), 1, nil)
	if err != nil {
		t.Fatalf("NewBroadcaster: %v", err)
	}
	defer b.Close()

	b.PublishAdvisory(motion.Advisory{Message: motion.AdvisoryNotLevel, PitchDeg: 20})

	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1500)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	var d Datagram
	if err := json.Unmarshal(buf[:n], &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Type != "advisory" || d.PitchDeg != 20 {
		t.Fatalf("datagram=%+v", d)
	}
}

// Package udp sends compact game telemetry datagrams to an external display
// or logger on the local network.
package udp

import (
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"

	"go.uber.org/zap"

	"tiltgame/internal/game"
	"tiltgame/internal/logging"
	"tiltgame/internal/motion"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

func dialUDP(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
	return net.DialUDP(network, laddr, raddr)
}

// Datagram is one telemetry message. Frame fields are omitted for advisories.
type Datagram struct {
	Type        string                  `json:"type"`
	Seq         uint64                  `json:"seq,omitempty"`
	X           float64                 `json:"x,omitempty"`
	Y           float64                 `json:"y,omitempty"`
	Inside      bool                    `json:"inside"`
	Orientation motion.OrientationState `json:"orientation"`
	PitchDeg    int                     `json:"pitch_deg"`
	Message     string                  `json:"message,omitempty"`
}

// Broadcaster implements game.FrameSink and game.AdvisorySink. Every
// advisory is sent; frames are decimated to one in Every.
type Broadcaster struct {
	dest  string
	conn  udpConn
	every uint64
	log   *zap.Logger

	frames atomic.Uint64
	sent   atomic.Uint64
	failed atomic.Uint64
}

func NewBroadcaster(dest string, every int, log *zap.Logger) (*Broadcaster, error) {
	b, err := newBroadcaster(dest, net.ResolveUDPAddr, dialUDP)
	if err != nil {
		return nil, err
	}
	if every > 1 {
		b.every = uint64(every)
	}
	b.log = logging.OrNop(log).Named("udp")
	return b, nil
}

func newBroadcaster(dest string, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &Broadcaster{dest: dest, conn: conn, every: 1, log: zap.NewNop()}, nil
}

func (b *Broadcaster) Dest() string { return b.dest }

func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := b.conn.Write(payload)
	return err
}

func (b *Broadcaster) PublishFrame(f game.Frame) {
	n := b.frames.Add(1)
	if b.every > 1 && (n-1)%b.every != 0 {
		return
	}
	b.sendDatagram(Datagram{
		Type:        "frame",
		Seq:         f.Seq,
		X:           f.Position.X,
		Y:           f.Position.Y,
		Inside:      f.Inside,
		Orientation: f.Orientation,
		PitchDeg:    f.PitchDeg,
	})
}

func (b *Broadcaster) PublishAdvisory(a motion.Advisory) {
	b.sendDatagram(Datagram{
		Type:        "advisory",
		Orientation: motion.Tilted,
		PitchDeg:    a.PitchDeg,
		Message:     a.Message,
	})
}

func (b *Broadcaster) sendDatagram(d Datagram) {
	payload, err := json.Marshal(d)
	if err == nil {
		err = b.Send(payload)
	}
	if err != nil {
		// A missing listener shows up as ECONNREFUSED on connected sockets.
		if b.failed.Add(1)%100 == 1 && b.log != nil {
			b.log.Debug("udp send failed", zap.String("dest", b.dest), zap.Error(err))
		}
		return
	}
	b.sent.Add(1)
}

// Stats reports datagrams sent and failed.
func (b *Broadcaster) Stats() (sent, failed uint64) {
	return b.sent.Load(), b.failed.Load()
}

func (b *Broadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

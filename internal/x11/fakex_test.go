package x11

import (
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipbridge/internal/bridge"
)

// Core request opcodes the fake server knows about.
const (
	opCreateWindow      = 1
	opDestroyWindow     = 4
	opInternAtom        = 16
	opChangeProperty    = 18
	opSetSelectionOwner = 22
	opGetSelectionOwner = 23
	opSendEvent         = 25
	opGetInputFocus     = 43
)

const fakeRoot = 0x100

// fakeX is an X server that speaks just enough of the core protocol for a
// Conn: the setup handshake, InternAtom, GetInputFocus and the selection
// owner requests. Every request is logged.
type fakeX struct {
	t  *testing.T
	ln net.Listener

	// hangUp closes the client right after the setup reply.
	hangUp bool

	mu       sync.Mutex
	wmu      sync.Mutex
	client   net.Conn
	fail     map[byte]byte
	atoms    map[string]uint32
	owners   map[uint32]uint32
	nextAtom uint32
	log      []fakeRequest
}

type fakeRequest struct {
	op  byte
	seq uint16
	buf []byte
}

func startFakeX(t *testing.T, configure func(x *fakeX)) *fakeX {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	x := &fakeX{
		t:        t,
		ln:       ln,
		fail:     map[byte]byte{},
		atoms:    map[string]uint32{},
		owners:   map[uint32]uint32{},
		nextAtom: 300,
	}
	if configure != nil {
		configure(x)
	}
	go x.accept()
	return x
}

// endpoint maps the listener port onto an X display number.
func (x *fakeX) endpoint() bridge.Endpoint {
	port := x.ln.Addr().(*net.TCPAddr).Port
	if port < 6000 {
		x.t.Skipf("listener port %d is below the X11 range", port)
	}
	return bridge.Endpoint{Host: "127.0.0.1", Display: port - 6000}
}

func (x *fakeX) accept() {
	nc, err := x.ln.Accept()
	if err != nil {
		return
	}
	defer nc.Close()
	x.mu.Lock()
	x.client = nc
	x.mu.Unlock()

	if err := x.handshake(nc); err != nil || x.hangUp {
		return
	}

	var seq uint16
	for {
		hdr := make([]byte, 4)
		if _, err := io.ReadFull(nc, hdr); err != nil {
			return
		}
		buf := make([]byte, int(xgb.Get16(hdr[2:]))*4)
		copy(buf, hdr)
		if _, err := io.ReadFull(nc, buf[4:]); err != nil {
			return
		}
		seq++
		x.handle(fakeRequest{op: buf[0], seq: seq, buf: buf})
	}
}

func (x *fakeX) handshake(nc net.Conn) error {
	req := make([]byte, 12)
	if _, err := io.ReadFull(nc, req); err != nil {
		return err
	}
	auth := make([]byte, xgb.Pad(int(xgb.Get16(req[6:])))+xgb.Pad(int(xgb.Get16(req[8:]))))
	if _, err := io.ReadFull(nc, auth); err != nil {
		return err
	}

	setup := xproto.SetupInfo{
		Status:               1,
		ProtocolMajorVersion: 11,
		ResourceIdBase:       0x200000,
		ResourceIdMask:       0x1fffff,
		VendorLen:            4,
		Vendor:               "fake",
		MaximumRequestLength: 0xffff,
		RootsLen:             1,
		Roots: []xproto.ScreenInfo{{
			Root:       fakeRoot,
			WhitePixel: 0xffffff,
			RootVisual: 0x21,
			RootDepth:  24,
		}},
	}.Bytes()
	xgb.Put16(setup[6:], uint16((len(setup)-8)/4))
	_, err := nc.Write(setup)
	return err
}

func (x *fakeX) handle(r fakeRequest) {
	x.mu.Lock()
	x.log = append(x.log, r)
	code, failing := x.fail[r.op]
	delete(x.fail, r.op)
	x.mu.Unlock()

	if failing {
		x.sendError(r.seq, code, r.op, xgb.Get32(r.buf[4:]))
		return
	}

	switch r.op {
	case opInternAtom:
		name := string(r.buf[8 : 8+int(xgb.Get16(r.buf[4:]))])
		x.reply(r.seq, x.atom(name))
	case opGetInputFocus:
		x.reply(r.seq, fakeRoot)
	case opGetSelectionOwner:
		x.mu.Lock()
		owner := x.owners[xgb.Get32(r.buf[4:])]
		x.mu.Unlock()
		x.reply(r.seq, owner)
	case opSetSelectionOwner:
		x.mu.Lock()
		x.owners[xgb.Get32(r.buf[8:])] = xgb.Get32(r.buf[4:])
		x.mu.Unlock()
	}
}

// atom returns the server's atom for name, allocating one on first use.
func (x *fakeX) atom(name string) uint32 {
	if name == bridge.SelectionPrimary {
		return uint32(xproto.AtomPrimary)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	a, ok := x.atoms[name]
	if !ok {
		a = x.nextAtom
		x.nextAtom++
		x.atoms[name] = a
	}
	return a
}

// failNext answers the next request with opcode op with X error code.
func (x *fakeX) failNext(op, code byte) {
	x.mu.Lock()
	x.fail[op] = code
	x.mu.Unlock()
}

func (x *fakeX) requests(op byte) []fakeRequest {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []fakeRequest
	for _, r := range x.log {
		if r.op == op {
			out = append(out, r)
		}
	}
	return out
}

func (x *fakeX) reply(seq uint16, word uint32) {
	buf := make([]byte, 32)
	buf[0] = 1
	xgb.Put16(buf[2:], seq)
	xgb.Put32(buf[8:], word)
	x.send(buf)
}

func (x *fakeX) sendError(seq uint16, code, major byte, bad uint32) {
	buf := make([]byte, 32)
	buf[1] = code
	xgb.Put16(buf[2:], seq)
	xgb.Put32(buf[4:], bad)
	buf[10] = major
	x.send(buf)
}

// send writes raw bytes, an event or a reply, to the client.
func (x *fakeX) send(buf []byte) {
	x.mu.Lock()
	nc := x.client
	x.mu.Unlock()
	if nc == nil {
		return
	}
	x.wmu.Lock()
	defer x.wmu.Unlock()
	_, _ = nc.Write(buf)
}

// recordingFaults keeps protocol faults and hands fatal ones to a real
// controller armed for the test session.
type recordingFaults struct {
	*bridge.Controller
	protocol []bridge.ProtocolFault
}

func (f *recordingFaults) ProtocolFault(pf bridge.ProtocolFault) {
	f.protocol = append(f.protocol, pf)
}

const testSession bridge.SessionID = "01TESTSESSION"

func dialFake(t *testing.T, x *fakeX, text TextSource) (*Conn, *recordingFaults) {
	t.Helper()
	t.Setenv("XAUTHORITY", filepath.Join(t.TempDir(), "none"))

	faults := &recordingFaults{Controller: bridge.NewController(nil)}
	faults.Arm(testSession)
	d, err := NewDialer(text).Dial(x.endpoint(), testSession, faults)
	require.NoError(t, err)
	c := d.(*Conn)
	t.Cleanup(func() { _ = c.Close() })
	return c, faults
}

// drainUntil drains c until done accepts the result.
func drainUntil(t *testing.T, c *Conn, w bridge.WindowID, unicode bool, done func(bridge.DrainResult, error) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if done(c.Drain(w, unicode)) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("drain never reached the expected state")
}

type staticText string

func (s staticText) Text() ([]byte, bool) { return []byte(s), s != "" }

package socks5

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// State is a Negotiator's position in the handshake.
type State int

const (
	StateAwaitGreeting State = iota
	StateAwaitRequest
	StateEstablishing
	StateRefused
)

func (s State) String() string {
	switch s {
	case StateAwaitGreeting:
		return "await greeting"
	case StateAwaitRequest:
		return "await request"
	case StateEstablishing:
		return "establishing"
	case StateRefused:
		return "refused"
	default:
		return fmt.Sprintf("state %d", int(s))
	}
}

// Outcome is what the proxy should do with a parsed request.
type Outcome int

const (
	OutcomeRefused Outcome = iota
	OutcomeTCP
	OutcomeUDP
	OutcomeBind
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRefused:
		return "refused"
	case OutcomeTCP:
		return "tcp"
	case OutcomeUDP:
		return "udp"
	case OutcomeBind:
		return "bind"
	default:
		return fmt.Sprintf("outcome %d", int(o))
	}
}

// Plan is the result of a completed handshake.
type Plan struct {
	Request *Request
	Outcome Outcome
	// Rep is the reply code to send: RepSuccess for OutcomeTCP, a failure
	// code for everything else.
	Rep    byte
	Method byte
	// Pending holds bytes the client sent after the request frame; they
	// belong to the relayed stream.
	Pending []byte
}

// Decide maps a parsed request and its parse error to an outcome and reply
// code. UDP ASSOCIATE and BIND are recognized but refused as unsupported;
// commands outside the protocol are refused as not allowed.
func Decide(req *Request, parseErr error) (Outcome, byte) {
	if errors.Is(parseErr, ErrAddressTypeNotSupported) {
		return OutcomeRefused, RepAddressTypeNotSupported
	}
	switch req.Cmd {
	case CmdConnect:
		return OutcomeTCP, RepSuccess
	case CmdUDPAssociate:
		return OutcomeUDP, RepCommandNotSupported
	case CmdBind:
		return OutcomeBind, RepCommandNotSupported
	default:
		return OutcomeRefused, RepNotAllowed
	}
}

// Negotiator runs the server side of the handshake on one connection.
//
// Each frame is taken from a single read of up to MaxFrameSize bytes. Bytes
// beyond the parsed frame are carried over to the next one, so clients that
// pipeline their greeting and request are handled. A carried-over request
// that is cut short is completed with one more read.
type Negotiator struct {
	rw      io.ReadWriter
	buf     []byte
	pending []byte
	state   State
}

// NewNegotiator returns a Negotiator reading from and replying on rw.
func NewNegotiator(rw io.ReadWriter) *Negotiator {
	return &Negotiator{rw: rw, buf: make([]byte, MaxFrameSize)}
}

// State returns the current handshake state.
func (n *Negotiator) State() State {
	return n.state
}

// Negotiate reads the greeting, answers it, and reads the request.
//
// A malformed greeting or request returns a *FormatError without writing
// anything. A greeting without an acceptable method is answered with
// MethodNoAcceptable and returns ErrNoAcceptableMethods. Otherwise the
// returned Plan says how to proceed; refused plans still need Refuse.
func (n *Negotiator) Negotiate() (*Plan, error) {
	n.state = StateAwaitGreeting
	frame, _, err := n.readFrame()
	if err != nil {
		return nil, fmt.Errorf("read greeting: %w", err)
	}
	g, used, err := ParseGreeting(frame)
	if err != nil {
		return nil, err
	}
	n.pending = frame[used:]

	method := SelectMethod(g.Methods)
	if _, err := n.rw.Write(EncodeGreetingReply(g.Ver, method)); err != nil {
		return nil, fmt.Errorf("write greeting reply: %w", err)
	}
	if method == MethodNoAcceptable {
		n.state = StateRefused
		return nil, ErrNoAcceptableMethods
	}

	n.state = StateAwaitRequest
	frame, carried, err := n.readFrame()
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	req, used, err := ParseConnectRequest(frame)
	var fe *FormatError
	if carried && errors.As(err, &fe) {
		if frame, err = n.extendFrame(frame); err != nil {
			return nil, fmt.Errorf("read request: %w", err)
		}
		req, used, err = ParseConnectRequest(frame)
	}
	if err != nil && !errors.Is(err, ErrAddressTypeNotSupported) {
		return nil, err
	}

	outcome, rep := Decide(req, err)
	plan := &Plan{Request: req, Outcome: outcome, Rep: rep, Method: method}
	if outcome != OutcomeTCP {
		n.state = StateRefused
		return plan, nil
	}
	plan.Pending = bytes.Clone(frame[used:])
	n.state = StateEstablishing
	return plan, nil
}

// Refuse sends the failure reply for plan and returns a *RefusedError
// describing it.
func (n *Negotiator) Refuse(plan *Plan) error {
	n.state = StateRefused
	refused := &RefusedError{Cmd: plan.Request.Cmd, Rep: plan.Rep}
	if err := n.Reply(ReplyTo(plan.Request, plan.Rep)); err != nil {
		return fmt.Errorf("%w: %w", refused, err)
	}
	return refused
}

// Reply writes r to the client.
func (n *Negotiator) Reply(r Reply) error {
	if _, err := n.rw.Write(EncodeConnectReply(r)); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

// readFrame returns the next frame and whether it came from bytes carried
// over from the previous read.
func (n *Negotiator) readFrame() ([]byte, bool, error) {
	if len(n.pending) > 0 {
		b := n.pending
		n.pending = nil
		return b, true, nil
	}
	b, err := n.read(0)
	return b, false, err
}

// extendFrame moves frame to the front of the buffer and appends one more
// read to it.
func (n *Negotiator) extendFrame(frame []byte) ([]byte, error) {
	if len(frame) >= len(n.buf) {
		return nil, &FormatError{Frame: "request", Need: len(frame) + 1, Got: len(frame)}
	}
	off := copy(n.buf, frame)
	return n.read(off)
}

// read fills n.buf from off and returns n.buf up to the end of the data.
func (n *Negotiator) read(off int) ([]byte, error) {
	for {
		k, err := n.rw.Read(n.buf[off:])
		if k > 0 {
			return n.buf[:off+k], nil
		}
		if err != nil {
			return nil, err
		}
	}
}

package socks5

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	txsocks5 "github.com/txthinking/socks5"
)

const (
	CmdConnect      = txsocks5.CmdConnect
	CmdBind         = txsocks5.CmdBind
	CmdUDPAssociate = txsocks5.CmdUDP

	ATYPIPv4   = txsocks5.ATYPIPv4
	ATYPDomain = txsocks5.ATYPDomain
	ATYPIPv6   = txsocks5.ATYPIPv6
)

// requestHeaderLen covers VER CMD RSV ATYP.
const requestHeaderLen = 4

// Addr is a destination or bound address. Exactly one of IP or Name is
// meaningful, chosen by the frame's ATYP.
type Addr struct {
	IP   netip.Addr
	Name string
	Port uint16
}

// String returns host:port suitable for dialing or logging.
func (a Addr) String() string {
	host := a.Name
	if a.IP.IsValid() {
		host = a.IP.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(int(a.Port)))
}

// Request is a parsed VER CMD RSV ATYP DST.ADDR DST.PORT frame.
type Request struct {
	Ver  byte
	Cmd  byte
	Rsv  byte
	Atyp byte
	Dst  Addr
}

// ParseConnectRequest parses a connect request from b and reports how many
// bytes it consumed. For an unknown ATYP it returns the header fields along
// with ErrAddressTypeNotSupported.
func ParseConnectRequest(b []byte) (*Request, int, error) {
	if len(b) < requestHeaderLen {
		return nil, 0, &FormatError{Frame: "request", Need: requestHeaderLen, Got: len(b)}
	}
	req := &Request{Ver: b[0], Cmd: b[1], Rsv: b[2], Atyp: b[3]}

	dst, n, err := parseAddr(req.Atyp, b[requestHeaderLen:])
	if err != nil {
		if fe, ok := err.(*FormatError); ok {
			fe.Frame = "request"
			fe.Need += requestHeaderLen
			fe.Got += requestHeaderLen
		}
		return req, requestHeaderLen, err
	}
	req.Dst = dst
	return req, requestHeaderLen + n, nil
}

func parseAddr(atyp byte, b []byte) (Addr, int, error) {
	var (
		a   Addr
		off int
	)
	switch atyp {
	case ATYPIPv4:
		off = net.IPv4len
		if len(b) < off+2 {
			return Addr{}, 0, &FormatError{Need: off + 2, Got: len(b)}
		}
		a.IP = netip.AddrFrom4([4]byte(b[:off]))
	case ATYPIPv6:
		off = net.IPv6len
		if len(b) < off+2 {
			return Addr{}, 0, &FormatError{Need: off + 2, Got: len(b)}
		}
		a.IP = netip.AddrFrom16([16]byte(b[:off]))
	case ATYPDomain:
		if len(b) < 1 {
			return Addr{}, 0, &FormatError{Need: 1, Got: len(b)}
		}
		off = 1 + int(b[0])
		if len(b) < off+2 {
			return Addr{}, 0, &FormatError{Need: off + 2, Got: len(b)}
		}
		a.Name = string(b[1:off])
	default:
		return Addr{}, 0, fmt.Errorf("%w: 0x%02x", ErrAddressTypeNotSupported, atyp)
	}
	a.Port = binary.BigEndian.Uint16(b[off : off+2])
	return a, off + 2, nil
}

// CommandString names a command byte for logs.
func CommandString(cmd byte) string {
	switch cmd {
	case CmdConnect:
		return "connect"
	case CmdBind:
		return "bind"
	case CmdUDPAssociate:
		return "udp associate"
	default:
		return "command " + strconv.Itoa(int(cmd))
	}
}

package socks5

import (
	"encoding/binary"
	"strconv"

	txsocks5 "github.com/txthinking/socks5"
)

const (
	RepSuccess                 = txsocks5.RepSuccess
	RepGeneralFailure          = txsocks5.RepServerFailure
	RepNotAllowed              = txsocks5.RepNotAllowed
	RepConnectionRefused       = txsocks5.RepConnectionRefused
	RepCommandNotSupported     = txsocks5.RepCommandNotSupported
	RepAddressTypeNotSupported = txsocks5.RepAddressNotSupported
)

// Reply is a VER REP RSV ATYP BND.ADDR BND.PORT frame.
type Reply struct {
	Ver  byte
	Rep  byte
	Rsv  byte
	Atyp byte
	Bnd  Addr
}

// ReplyTo builds a reply to req carrying rep and echoing its destination.
func ReplyTo(req *Request, rep byte) Reply {
	return Reply{Ver: req.Ver, Rep: rep, Rsv: req.Rsv, Atyp: req.Atyp, Bnd: req.Dst}
}

// EncodeConnectReply encodes r using the layout selected by r.Atyp.
//
// An unknown ATYP is encoded as the 4 byte header alone. An IPv4 or IPv6
// reply without a matching address is zero-filled. Names longer than 255
// bytes are truncated.
func EncodeConnectReply(r Reply) []byte {
	b := make([]byte, 0, requestHeaderLen+1+255+2)
	b = append(b, r.Ver, r.Rep, r.Rsv, r.Atyp)

	switch r.Atyp {
	case ATYPIPv4:
		var ip [4]byte
		if r.Bnd.IP.Is4() || r.Bnd.IP.Is4In6() {
			ip = r.Bnd.IP.Unmap().As4()
		}
		b = append(b, ip[:]...)
	case ATYPIPv6:
		var ip [16]byte
		if r.Bnd.IP.IsValid() {
			ip = r.Bnd.IP.As16()
		}
		b = append(b, ip[:]...)
	case ATYPDomain:
		name := r.Bnd.Name
		if len(name) > 255 {
			name = name[:255]
		}
		b = append(b, byte(len(name)))
		b = append(b, name...)
	default:
		return b
	}
	return binary.BigEndian.AppendUint16(b, r.Bnd.Port)
}

// FailureReply builds a zero-address reply for when no request is
// available to echo.
func FailureReply(ver, rep byte) Reply {
	return Reply{Ver: ver, Rep: rep, Atyp: ATYPIPv4}
}

// ReplyString names a reply code for logs.
func ReplyString(rep byte) string {
	switch rep {
	case RepSuccess:
		return "succeeded"
	case RepGeneralFailure:
		return "general server failure"
	case RepNotAllowed:
		return "not allowed by ruleset"
	case RepConnectionRefused:
		return "connection refused"
	case RepCommandNotSupported:
		return "command not supported"
	case RepAddressTypeNotSupported:
		return "address type not supported"
	default:
		return "reply " + strconv.Itoa(int(rep))
	}
}

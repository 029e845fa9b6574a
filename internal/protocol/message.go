package protocol

import (
	"fmt"
	"net/url"
	"strings"
)

// Verb is one of the closed set of wire commands exchanged between
// master, worker and client. Unlike the teacher's binary Command enum
// (protocol/command.go), verbs here are text tokens — the wire is
// newline-terminated UTF-8, not a length-prefixed binary frame.
type Verb int

const (
	UNKNOWN Verb = iota
	REQUEST_CLIENT
	REQUEST_WORKER
	BYE
	PAIR_INFO
	PAIR_ABORT
)

func (v Verb) String() string {
	switch v {
	case REQUEST_CLIENT:
		return "REQUEST_CLIENT"
	case REQUEST_WORKER:
		return "REQUEST_WORKER"
	case BYE:
		return "BYE"
	case PAIR_INFO:
		return "PAIR_INFO"
	case PAIR_ABORT:
		return "PAIR_ABORT"
	default:
		return "UNKNOWN"
	}
}

// ParseVerb maps the first whitespace-delimited token of a line to a Verb.
func ParseVerb(token string) Verb {
	switch token {
	case "REQUEST_CLIENT":
		return REQUEST_CLIENT
	case "REQUEST_WORKER":
		return REQUEST_WORKER
	case "BYE":
		return BYE
	case "PAIR_INFO":
		return PAIR_INFO
	case "PAIR_ABORT":
		return PAIR_ABORT
	default:
		return UNKNOWN
	}
}

// Fields splits a line into space-separated tokens, decoding any
// URL-encoded field (spec.md §6: "fields containing spaces are
// URL-encoded").
func Fields(line string) []string {
	raw := strings.Fields(line)
	out := make([]string, len(raw))
	for i, r := range raw {
		if dec, err := url.QueryUnescape(r); err == nil {
			out[i] = dec
		} else {
			out[i] = r
		}
	}
	return out
}

// EncodeField URL-encodes a field for transmission, escaping embedded
// whitespace per spec.md §6.
func EncodeField(field string) string {
	return url.QueryEscape(field)
}

// PairInfoLine builds the "PAIR_INFO <host> <port>" message sent to
// both halves of a freshly matched pair.
func PairInfoLine(host string, port int) string {
	return fmt.Sprintf("PAIR_INFO %s %d", EncodeField(host), port)
}

// ParsePairInfo extracts the host and port from a PAIR_INFO line's
// argument fields (the caller has already stripped the verb token).
func ParsePairInfo(fields []string) (host string, port string, ok bool) {
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

const PairAbortLine = "PAIR_ABORT"

// internal/driver/pax/frame.go
package pax

import (
	"bytes"
	"context"
	"strings"

	"pos-device-service/internal/driver/wire"
	"pos-device-service/internal/transport"
	"pos-device-service/pkg/driver"
)

// ProtocolVersion is sent in every request frame
const ProtocolVersion = "1.28"

const (
	maxFrame   = 8192
	maxNoise   = 64
	maxResends = 3
)

// Commands and their replies
const (
	CmdInitialize  = "A00"
	RplInitialize  = "A01"
	CmdCancel      = "A14"
	CmdCredit      = "T00"
	RplCredit      = "T01"
	CmdBatchClose  = "B00"
	RplBatchClose  = "B01"
	responseFields = 5
)

// Result codes
const (
	ResultApproved = "000000"
	ResultDeclined = "000100"
	ResultTimeout  = "100001"
	ResultAborted  = "100002"
)

// Response is a decoded reply frame
type Response struct {
	Status  string
	Command string
	Version string
	Code    string
	Message string
	Payload []string
}

// Approved reports a 000000 result code
func (r *Response) Approved() bool {
	return r.Code == ResultApproved
}

// encodeFrame renders STX cmd FS version FS fields... ETX LRC.
// The LRC covers everything after STX up to and including ETX.
func encodeFrame(cmd string, fields ...string) []byte {
	var body bytes.Buffer
	body.WriteString(cmd)
	body.WriteByte(wire.FS)
	body.WriteString(ProtocolVersion)
	for _, f := range fields {
		body.WriteByte(wire.FS)
		body.WriteString(f)
	}
	body.WriteByte(wire.ETX)

	frame := make([]byte, 0, body.Len()+2)
	frame = append(frame, wire.STX)
	frame = append(frame, body.Bytes()...)
	return append(frame, wire.LRC(body.Bytes()))
}

// readFrame returns the frame body without STX, ETX and LRC
func readFrame(ctx context.Context, t transport.Transport) ([]byte, error) {
	for skipped := 0; ; skipped++ {
		b, err := transport.ReadExact(ctx, t, 1)
		if err != nil {
			return nil, err
		}
		if b[0] == wire.STX {
			break
		}
		if skipped >= maxNoise {
			return nil, &driver.ProtocolError{Reason: "no frame start"}
		}
	}

	body, err := transport.ReadUntil(ctx, t, wire.ETX, maxFrame)
	if err != nil {
		return nil, err
	}
	lrc, err := transport.ReadExact(ctx, t, 1)
	if err != nil {
		return nil, err
	}
	if wire.LRC(body) != lrc[0] {
		return nil, errBadChecksum
	}
	return body[:len(body)-1], nil
}

var errBadChecksum = &driver.ProtocolError{Reason: "LRC mismatch"}

// parseResponse splits a reply body into its header fields and payload
func parseResponse(body []byte) (*Response, error) {
	parts := strings.Split(string(body), string(rune(wire.FS)))
	if len(parts) < responseFields {
		return nil, &driver.ProtocolError{Reason: "short response frame"}
	}
	return &Response{
		Status:  parts[0],
		Command: parts[1],
		Version: parts[2],
		Code:    parts[3],
		Message: parts[4],
		Payload: parts[responseFields:],
	}, nil
}

// subFields splits a payload field on US
func subFields(field string) []string {
	return strings.Split(field, string(rune(wire.US)))
}

func joinSub(values ...string) string {
	return strings.Join(values, string(rune(wire.US)))
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

// internal/driver/ecr/frame.go
package ecr

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"pos-device-service/internal/driver/wire"
	"pos-device-service/internal/transport"
	"pos-device-service/pkg/driver"
)

const (
	maxFrameData = 4096
	maxNoise     = 256
)

// Command names of the fiscal dialect
const (
	cmdStatus  = "STATUS"
	cmdEcho    = "ECHO"
	cmdOpen    = "OPEN"
	cmdItem    = "ITEM"
	cmdPay     = "PAY"
	cmdClose   = "CLOSE"
	cmdCancel  = "CANCEL"
	cmdZClose  = "ZCLOSE"
	cmdXReport = "XREPORT"
)

const statusOK = "0"

// encodeFrame wraps data as STX | len LE16 | data | ETX | LRC
func encodeFrame(data []byte) []byte {
	frame := make([]byte, 0, len(data)+5)
	frame = append(frame, wire.STX)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(data)))
	frame = append(frame, data...)
	frame = append(frame, wire.ETX)
	return append(frame, wire.LRC(frame))
}

// readFrame reads one frame and returns its data. Bytes before STX are skipped.
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

	header, err := transport.ReadExact(ctx, t, 2)
	if err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint16(header))
	if n > maxFrameData {
		return nil, &driver.ProtocolError{Reason: fmt.Sprintf("frame length %d exceeds %d", n, maxFrameData)}
	}

	rest, err := transport.ReadExact(ctx, t, n+2)
	if err != nil {
		return nil, err
	}
	data, etx, lrc := rest[:n], rest[n], rest[n+1]
	if etx != wire.ETX {
		return nil, &driver.ProtocolError{Reason: "missing ETX"}
	}

	check := append([]byte{wire.STX}, header...)
	check = append(check, data...)
	check = append(check, wire.ETX)
	if wire.LRC(check) != lrc {
		return nil, &driver.ProtocolError{Reason: "LRC mismatch"}
	}
	return data, nil
}

// encodeCommand joins a command and its fields with FS
func encodeCommand(cp wire.CodePage, cmd string, fields ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString(cmd)
	for _, f := range fields {
		buf.WriteByte(wire.FS)
		buf.Write(cp.Encode(f))
	}
	return buf.Bytes()
}

// splitReply splits reply data into decoded fields
func splitReply(cp wire.CodePage, data []byte) []string {
	parts := bytes.Split(data, []byte{wire.FS})
	fields := make([]string, len(parts))
	for i, p := range parts {
		fields[i] = cp.Decode(p)
	}
	return fields
}

// decodeReply splits reply data into fields and fails on a non-OK status
func decodeReply(cp wire.CodePage, data []byte) ([]string, error) {
	fields := splitReply(cp, data)
	if fields[0] != statusOK {
		devErr := &driver.DeviceError{Code: fields[0]}
		if len(fields) > 1 {
			devErr.Message = fields[1]
		}
		return nil, devErr
	}
	return fields, nil
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

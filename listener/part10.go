package listener

import (
	"encoding/binary"
	"os"
)

// Implementation identity written into the file meta group.
const (
	implementationClassUID = "1.2.826.0.1.3680043.10.1082.1"
	implementationVersion  = "PACSGO_01"
)

// WritePart10File wraps a bare dataset, exactly as it arrived on the
// wire, in a Part 10 envelope: 128-byte preamble, DICM magic and the
// group 0002 file meta information in Explicit VR Little Endian. The
// dataset bytes are not re-encoded; the recorded transfer syntax tells
// readers how to decode them.
func WritePart10File(path, sopClassUID, sopInstanceUID, transferSyntaxUID string, dataset []byte) error {
	meta := buildFileMeta(sopClassUID, sopInstanceUID, transferSyntaxUID)

	buf := make([]byte, 0, 132+len(meta)+len(dataset))
	buf = append(buf, make([]byte, 128)...)
	buf = append(buf, 'D', 'I', 'C', 'M')
	buf = append(buf, meta...)
	buf = append(buf, dataset...)
	return os.WriteFile(path, buf, 0o644)
}

// buildFileMeta encodes group 0002 with a correct group length element.
func buildFileMeta(sopClassUID, sopInstanceUID, transferSyntaxUID string) []byte {
	var body []byte
	body = appendMetaOB(body, 0x0001, []byte{0x00, 0x01})
	body = appendMetaUI(body, 0x0002, sopClassUID)
	body = appendMetaUI(body, 0x0003, sopInstanceUID)
	body = appendMetaUI(body, 0x0010, transferSyntaxUID)
	body = appendMetaUI(body, 0x0012, implementationClassUID)
	body = appendMetaSH(body, 0x0013, implementationVersion)

	groupLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(groupLen, uint32(len(body)))
	head := appendShortElement(nil, 0x0000, "UL", groupLen)
	return append(head, body...)
}

func appendMetaUI(buf []byte, element uint16, value string) []byte {
	return appendShortElement(buf, element, "UI", padEven([]byte(value), 0x00))
}

func appendMetaSH(buf []byte, element uint16, value string) []byte {
	return appendShortElement(buf, element, "SH", padEven([]byte(value), ' '))
}

// appendMetaOB encodes an OB element, which carries a reserved field and
// a 4-byte length.
func appendMetaOB(buf []byte, element uint16, value []byte) []byte {
	value = padEven(value, 0x00)
	buf = appendTag(buf, element)
	buf = append(buf, 'O', 'B', 0x00, 0x00)
	length := make([]byte, 4)
	binary.LittleEndian.PutUint32(length, uint32(len(value)))
	buf = append(buf, length...)
	return append(buf, value...)
}

// appendShortElement encodes an element whose VR uses a 2-byte length.
func appendShortElement(buf []byte, element uint16, vr string, value []byte) []byte {
	buf = appendTag(buf, element)
	buf = append(buf, vr[0], vr[1])
	length := make([]byte, 2)
	binary.LittleEndian.PutUint16(length, uint16(len(value)))
	buf = append(buf, length...)
	return append(buf, value...)
}

func appendTag(buf []byte, element uint16) []byte {
	group := make([]byte, 2)
	binary.LittleEndian.PutUint16(group, 0x0002)
	elem := make([]byte, 2)
	binary.LittleEndian.PutUint16(elem, element)
	return append(append(buf, group...), elem...)
}

func padEven(value []byte, pad byte) []byte {
	if len(value)%2 != 0 {
		value = append(value, pad)
	}
	return value
}

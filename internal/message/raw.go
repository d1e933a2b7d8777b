package message

import "fmt"

// Raw is an opaque variant for tags without a registered decoder.
type Raw struct {
	tag  Type
	data []byte
}

func NewRaw(tag Type, data []byte) Raw {
	cp := make([]byte, len(data))
	copy(cp, data)

	return Raw{tag: tag, data: cp}
}

func (r Raw) Type() Type {
	return r.tag
}

func (r Raw) Payload() ([]byte, error) {
	cp := make([]byte, len(r.data))
	copy(cp, r.data)

	return cp, nil
}

func (r Raw) String() string {
	return fmt.Sprintf("raw(0x%02x, %d bytes)", uint8(r.tag), len(r.data))
}

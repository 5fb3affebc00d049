package cache

// Payload is an immutable response body shared by the cache and every
// in-flight response streaming it. The underlying bytes must not be modified
// after construction.
type Payload struct {
	b []byte
}

// NewPayload copies b into a new Payload.
func NewPayload(b []byte) Payload {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Payload{b: cp}
}

// Bytes returns the shared payload bytes. Callers must treat the slice as
// read-only.
func (p Payload) Bytes() []byte {
	return p.b
}

// Len returns the payload size in bytes.
func (p Payload) Len() int {
	return len(p.b)
}

// String returns the payload as a string.
func (p Payload) String() string {
	return string(p.b)
}

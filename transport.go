package mqtt

// Transport is the byte-stream adapter Instance reads framed MQTT packets
// from and writes them to (spec.md §6). It is the client's sole connection
// to a concrete network stack (TCP, TLS, lwIP, a POSIX socket, or a test
// double); Instance never dials, and never splits inbound bytes into packets
// itself.
//
// Implementations are responsible for delimiting exactly one MQTT control
// packet per ReadPacket call; Instance does not reframe partial reads across
// calls.
type Transport interface {
	// ReadPacket returns the next framed MQTT packet, or (nil, nil) if none
	// is available yet on a non-blocking transport. A non-nil error is
	// treated as fatal and surfaces from Run as ErrNetwork.
	ReadPacket() ([]byte, error)
	// WritePacket synchronously sends p. isMore hints that more writes will
	// follow immediately and an eager flush is not required. A short write
	// (n < len(p)) without an error is itself a network failure the caller
	// must report as such.
	WritePacket(p []byte, isMore bool) (n int, err error)
}

// Allocator is the memory adapter injected into Instance and AllocDecoder,
// mirroring the alloc/free pair spec.md §6 requires so embedded hosts can
// route packet storage through their own memory pools (e.g. lwIP's).
type Allocator interface {
	Alloc(size int) []byte
	Free(buf []byte)
}

// DefaultAllocator is the Allocator used when none is supplied: it defers
// entirely to the Go garbage collector. Free is a no-op.
type DefaultAllocator struct{}

func (DefaultAllocator) Alloc(size int) []byte { return make([]byte, size) }
func (DefaultAllocator) Free(buf []byte)       {}

// Package driver talks to TCP-connected LED controllers.
//
// It is the device-library boundary: everything above it (the registry, the
// controller bindings, the light entities) sees only the Handler interface
// and the sentinel errors defined here.
//
// # Architecture
//
//	┌────────────────┐          ┌──────────────┐   TCP   ┌────────────────┐
//	│ ledcontroller  │ Handler  │  TCPHandler  │◄───────►│ LED controller │
//	│ (bindings)     │─────────►│  + Codec     │         │ (MV / OG)      │
//	└────────────────┘          └──────────────┘         └────────────────┘
//
// One TCPHandler owns one TCP connection to one Endpoint. Several bindings
// share it, so every request/response exchange holds the handler's I/O
// mutex: two writes or reads never interleave on the wire.
//
// # Wire format
//
// The LineCodec speaks a CRLF-terminated ASCII protocol:
//
//	W MV 3 B8 200    -> OK | ERR <reason>
//	W OG 0 PCT 0     -> OK | ERR <reason>
//	R MV 3           -> V <0..255> | (empty line while the module has no data)
//
// Any other Codec can be plugged in through TCPOptions.Codec.
//
// # Connection lifecycle
//
// Connect dials exactly once and never retries. After an I/O failure the
// connection is dropped; the next exchange re-dials once before giving up
// with ErrNotConnected. Retry policy beyond that belongs to the caller.
package driver

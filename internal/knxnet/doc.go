// Package knxnet encodes and decodes the fixed binary structures of KNXnet/IP.
//
// Everything in this package is a pure function over byte slices: there is
// no I/O and no state carried between calls. The connection engine in
// internal/channel treats the types here as immutable value objects.
//
// # Frame Layout
//
// Every KNXnet/IP frame starts with a 6-byte header:
//
//	Byte 0:   Header length (always 0x06)
//	Byte 1:   Protocol version (0x10 for KNXnet/IP, 0x20 for the object server)
//	Byte 2-3: Service type identifier (big-endian)
//	Byte 4-5: Total frame length including the header (big-endian)
//
// Connection-oriented services (tunneling, object server) follow the header
// with a 4-byte connection header:
//
//	Byte 0: Structure length (always 0x04)
//	Byte 1: Channel id
//	Byte 2: Sequence counter
//	Byte 3: Reserved (requests) or status code (acknowledgments)
//
// # Connection Setup
//
// CONNECT_REQUEST carries two HPAI blocks (control and data endpoint) and a
// CRI describing the requested connection type. CONNECT_RESPONSE returns the
// channel id, a status code, the server's data endpoint and a CRD.
//
// # References
//
//   - KNX Standard 03_08_02 Core
//   - KNX Standard 03_08_04 Tunnelling
package knxnet

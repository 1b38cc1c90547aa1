// Package baos encodes and decodes object server (BAOS) messages carried
// in KNXnet/IP OBJSERVER_REQUEST frames.
//
// Every message starts with the main service byte 0xF0, a sub-service code,
// a 16-bit start item and a 16-bit item count:
//
//	F0 | subservice | start(2) | count(2) | body...
//
// Responses use the request sub-service with the high bit set. A response
// with a zero item count followed by one byte carries an error code.
// DatapointValue.Ind and ServerItem.Ind are sent by the server without a
// request.
//
// Only the services needed to read server state and datapoints are
// supported; the full object server catalogue is not.
package baos

// Package channel implements the acknowledged KNXnet/IP channel shared by
// the tunneling and object server protocols.
//
// A Channel owns one logical connection to a gateway. Over UDP it is
// created by a CONNECT_REQUEST/CONNECT_RESPONSE handshake that yields a
// channel id, and every service request is sequenced and acknowledged:
//
//	client                                gateway
//	  | -- REQUEST  ch=2 seq=5 ------------> |
//	  | <------------ ACK ch=2 seq=5 st=0 -- |   send sequence advances
//	  | <----------- REQUEST ch=2 seq=9 ---- |
//	  | -- ACK ch=2 seq=9 st=0 ------------> |   receive sequence advances
//
// Over TCP the stream provides ordering, so the channel id and sequence
// numbers are zero, no acknowledgments are exchanged, and a heartbeat
// probe keeps an idle connection open.
//
// Protocol differences are captured by a Protocol value and its Codec
// rather than by separate channel types.
//
// # Lifecycle
//
//	Connecting -> Open -> Closing -> Closed
//
// Close is idempotent and notifies close listeners exactly once.
package channel

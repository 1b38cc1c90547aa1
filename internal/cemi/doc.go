// Package cemi encodes and decodes Common External Message Interface (cEMI)
// link layer frames carried by KNXnet/IP tunneling.
//
// Only the standard L_Data service family is handled:
//
//	L_Data.req (0x11)  client to bus
//	L_Data.con (0x2E)  local confirmation of a request
//	L_Data.ind (0x29)  frame received from the bus
//
// Frame layout:
//
//	msgcode(1) addinfo-len(1) addinfo(n) ctrl1(1) ctrl2(1)
//	source(2) destination(2) npdu-len(1) tpci(1) apci|data(1) data(...)
//
// Group addresses use 3-level notation (main/middle/sub). Individual
// addresses use area.line.device notation.
package cemi

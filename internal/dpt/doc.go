// Package dpt converts between KNX datapoint type (DPT) encodings and
// plain values.
//
// Values are parsed from text so commands and the CLI can name them
// directly ("21.5" for 9.001, "on" for 1.001, "#ff8000" for 232.600) and
// decoded to JSON-friendly Go values for output.
//
// Supported main types: 1 (boolean), 3 (step control), 5 (unsigned 8-bit,
// scaled for 5.001 and 5.003), 9 (2-byte float), 17 (scene number),
// 18 (scene control) and 232 (RGB).
package dpt

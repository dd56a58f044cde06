package wasmhost

import (
	"encoding/hex"
	"strings"
)

// Hand-assembled modules covering the run paths without a toolchain.

const wasmHeader = "0061736d01000000"

const wasiModule = "16" + "776173695f736e617073686f745f70726576696577" + "31" // "wasi_snapshot_preview1"

func mustModule(parts ...string) []byte {
	b, err := hex.DecodeString(strings.Join(parts, ""))
	if err != nil {
		panic(err)
	}
	return b
}

// emptyStartWasm exports a _start that returns immediately.
var emptyStartWasm = mustModule(
	wasmHeader,
	"01040160" + "0000",
	"03020100",
	"070a01065f7374617274" + "0000",
	"0a040102000b",
)

// trapStartWasm exports a _start that hits unreachable.
var trapStartWasm = mustModule(
	wasmHeader,
	"01040160" + "0000",
	"03020100",
	"070a01065f7374617274" + "0000",
	"0a050103" + "00000b",
)

// exitWasm exits with 3 from _start and with 7 from set_option_is_web_mode.
var exitWasm = mustModule(
	wasmHeader,
	"0108026001" + "7f00" + "600000",
	"022401"+wasiModule+"0970726f635f65786974"+"0000",
	"0303020101",
	"072302"+"065f7374617274"+"0001"+"167365745f6f7074696f6e5f69735f7765625f6d6f6465"+"0002",
	"0a0f02"+"0600410310000b"+"0600410710000b",
)

// writerWasm writes "hello\nworld" to stdout from _start.
var writerWasm = mustModule(
	wasmHeader,
	"010c02"+"6004"+"7f7f7f7f"+"017f"+"600000",
	"022301"+wasiModule+"0866645f7772697465"+"0000",
	"03020101",
	"0503010001",
	"071302"+"065f7374617274"+"0001"+"066d656d6f7279"+"0200",
	"0a0f010d"+"00"+"4101"+"4100"+"4101"+"4118"+"1000"+"1a"+"0b",
	"0b1901"+"00"+"41000b"+"13"+"08000000"+"0b000000"+"68656c6c6f0a776f726c64",
)

// missingImportWasm imports env.missing, which no host module provides.
var missingImportWasm = mustModule(
	wasmHeader,
	"01040160"+"0000",
	"020f01"+"03656e76"+"076d697373696e67"+"0000",
)

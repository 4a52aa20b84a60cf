package errors

// ERR is the numeric error code carried by every Error.
type ERR int32

const (
	ERR_UNKNOWN             ERR = 0
	ERR_INVALID_ARGUMENT    ERR = 1
	ERR_NOT_FOUND           ERR = 2
	ERR_PROCESSING          ERR = 3
	ERR_CONFIGURATION       ERR = 4
	ERR_CONTEXT_CANCELED    ERR = 5
	ERR_ERROR               ERR = 9
	ERR_BLOCK_INVALID_POW   ERR = 10
	ERR_BLOCK_NOT_FOUND     ERR = 11
	ERR_BLOCK_INVALID       ERR = 12
	ERR_WIRE_MALFORMED      ERR = 20
	ERR_WIRE_BAD_CHECKSUM   ERR = 21
	ERR_PROTOCOL_VIOLATION  ERR = 30
	ERR_TIMEOUT             ERR = 31
	ERR_CONNECTION_CLOSED   ERR = 32
	ERR_REQUEST_IN_FLIGHT   ERR = 33
	ERR_INVALID_CHAIN       ERR = 40
	ERR_OUT_OF_SYNC         ERR = 41
	ERR_BOOTSTRAP           ERR = 42
	ERR_SERVICE_UNAVAILABLE ERR = 50
	ERR_SERVICE_NOT_STARTED ERR = 51
	ERR_SERVICE_ERROR       ERR = 52
	ERR_STORAGE_ERROR       ERR = 60
)

// ERR_name maps codes to their symbolic names, used by Error.Error().
var ERR_name = map[int32]string{
	0:  "ERR_UNKNOWN",
	1:  "ERR_INVALID_ARGUMENT",
	2:  "ERR_NOT_FOUND",
	3:  "ERR_PROCESSING",
	4:  "ERR_CONFIGURATION",
	5:  "ERR_CONTEXT_CANCELED",
	9:  "ERR_ERROR",
	10: "ERR_BLOCK_INVALID_POW",
	11: "ERR_BLOCK_NOT_FOUND",
	12: "ERR_BLOCK_INVALID",
	20: "ERR_WIRE_MALFORMED",
	21: "ERR_WIRE_BAD_CHECKSUM",
	30: "ERR_PROTOCOL_VIOLATION",
	31: "ERR_TIMEOUT",
	32: "ERR_CONNECTION_CLOSED",
	33: "ERR_REQUEST_IN_FLIGHT",
	40: "ERR_INVALID_CHAIN",
	41: "ERR_OUT_OF_SYNC",
	42: "ERR_BOOTSTRAP",
	50: "ERR_SERVICE_UNAVAILABLE",
	51: "ERR_SERVICE_NOT_STARTED",
	52: "ERR_SERVICE_ERROR",
	60: "ERR_STORAGE_ERROR",
}

// Enum returns the symbolic name of the code.
func (e ERR) Enum() string {
	if name, ok := ERR_name[int32(e)]; ok {
		return name
	}

	return "ERR_UNKNOWN"
}

package master

import (
	"encoding/binary"
	"fmt"
)

// parameterNoFileName is the state file a host persists the master's
// parameter-id counter under, mirroring the reference implementation's
// CLM_FILENAME_PARAM_NO.
const parameterNoFileName = "parameter_no"

// Persisted file layout: a generic 8-byte magic/version header (the same
// shape the reference implementation uses for every persisted state file)
// followed by the 2-byte parameter_no payload.
const (
	parameterNoFileMagic   uint32 = 0x434C4D50 // "CLMP"
	parameterNoFileVersion uint32 = 1
	parameterNoFileSize           = 4 + 4 + 2
)

// encodeParameterNoFile builds the on-disk representation of parameterNo.
func encodeParameterNoFile(parameterNo uint16) []byte {
	buf := make([]byte, parameterNoFileSize)
	binary.LittleEndian.PutUint32(buf[0:4], parameterNoFileMagic)
	binary.LittleEndian.PutUint32(buf[4:8], parameterNoFileVersion)
	binary.LittleEndian.PutUint16(buf[8:10], parameterNo)
	return buf
}

// decodeParameterNoFile validates data's magic and version and returns the
// persisted parameter_no.
func decodeParameterNoFile(data []byte) (uint16, error) {
	if len(data) != parameterNoFileSize {
		return 0, fmt.Errorf("master: parameter_no file: want %d bytes, got %d", parameterNoFileSize, len(data))
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != parameterNoFileMagic {
		return 0, fmt.Errorf("master: parameter_no file: bad magic %#x", magic)
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != parameterNoFileVersion {
		return 0, fmt.Errorf("master: parameter_no file: unsupported version %d", version)
	}
	return binary.LittleEndian.Uint16(data[8:10]), nil
}

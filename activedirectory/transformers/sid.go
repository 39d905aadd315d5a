package transformers

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ConvertSIDToString formats a byte array containing an object SID to a string in SID format.
func ConvertSIDToString(sidBytes []byte) (string, error) {
	// revision (1), sub-authority count (1), authority (6)
	if len(sidBytes) < 8 {
		return "", fmt.Errorf("invalid SID: too short")
	}

	revision := sidBytes[0]
	subAuthorityCount := int(sidBytes[1])

	// authority is a 48-bit big-endian integer
	authority := binary.BigEndian.Uint64(append([]byte{0, 0}, sidBytes[2:8]...))

	expectedLength := 8 + (subAuthorityCount * 4)
	if len(sidBytes) < expectedLength {
		return "", fmt.Errorf("invalid SID: insufficient length for sub-authorities")
	}

	var sidBuffer bytes.Buffer
	sidBuffer.WriteString(fmt.Sprintf("S-%d-%d", revision, authority))

	offset := 8
	for i := 0; i < subAuthorityCount; i++ {
		subAuthority := binary.LittleEndian.Uint32(sidBytes[offset : offset+4])
		sidBuffer.WriteString(fmt.Sprintf("-%d", subAuthority))
		offset += 4
	}

	return sidBuffer.String(), nil
}

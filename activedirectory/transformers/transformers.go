package transformers

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	filetimeEpochOffset = 116444736000000000
	filetimeNever       = int64(9223372036854775807)
)

// Normalize decodes the raw byte values of a single attribute into text.
//
// objectGUID and objectSid are rendered in their canonical string forms. Any other
// value that is not valid UTF-8 is dropped from the result, so a binary attribute
// the caller does not know about simply appears absent.
func Normalize(attribute string, values [][]byte) []string {
	switch strings.ToLower(attribute) {
	case "objectguid":
		return formatGUIDs(values)
	case "objectsid":
		return formatSIDs(values)
	}

	result := make([]string, 0, len(values))
	for _, b := range values {
		if !utf8.Valid(b) {
			continue
		}
		result = append(result, string(b))
	}
	return result
}

func formatGUIDs(values [][]byte) []string {
	result := make([]string, 0, len(values))
	for _, b := range values {
		u, err := ADGuidToUUID(b)
		if err != nil {
			continue
		}
		result = append(result, u.String())
	}
	return result
}

func formatSIDs(values [][]byte) []string {
	result := make([]string, 0, len(values))
	for _, b := range values {
		sid, err := ConvertSIDToString(b)
		if err != nil {
			continue
		}
		result = append(result, sid)
	}
	return result
}

// ADGuidToUUID converts an Active Directory GUID (mixed-endian) into an RFC4122 uuid.UUID.
func ADGuidToUUID(adGuid []byte) (uuid.UUID, error) {
	if len(adGuid) != 16 {
		return uuid.Nil, fmt.Errorf("invalid GUID: expected 16 bytes, got %d", len(adGuid))
	}

	rfcBytes := make([]byte, 16)
	copy(rfcBytes, adGuid)

	rfcBytes[0], rfcBytes[1], rfcBytes[2], rfcBytes[3] = rfcBytes[3], rfcBytes[2], rfcBytes[1], rfcBytes[0]
	rfcBytes[4], rfcBytes[5] = rfcBytes[5], rfcBytes[4]
	rfcBytes[6], rfcBytes[7] = rfcBytes[7], rfcBytes[6]

	u, err := uuid.FromBytes(rfcBytes)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid UUID generated from AD GUID: %w", err)
	}
	return u, nil
}

// FiletimeToTime converts a Windows FILETIME (100ns intervals since 1601-01-01) to UTC.
func FiletimeToTime(ft int64) time.Time {
	nsSinceUnix := (ft - filetimeEpochOffset) * 100
	return time.Unix(0, nsSinceUnix).UTC()
}

// TimeToFiletime is the inverse of FiletimeToTime.
func TimeToFiletime(t time.Time) int64 {
	return t.UTC().UnixNano()/100 + filetimeEpochOffset
}

// ParseFiletime parses the decimal string form of a FILETIME attribute such as pwdLastSet.
func ParseFiletime(value string) (time.Time, error) {
	ft, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid FILETIME integer %q: %w", value, err)
	}
	if ft == filetimeNever {
		return time.Time{}, fmt.Errorf("FILETIME %q does not represent a point in time", value)
	}
	return FiletimeToTime(ft), nil
}

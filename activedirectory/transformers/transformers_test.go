package transformers_test

import (
	"testing"
	"time"

	"f0oster/adsweep/activedirectory/transformers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	adGUID := []byte{0x04, 0x03, 0x02, 0x01, 0x06, 0x05, 0x08, 0x07, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	sid := []byte{
		0x01, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05,
		0x15, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00,
		0x03, 0x00, 0x00, 0x00,
		0xf4, 0x01, 0x00, 0x00,
	}

	type testCase struct {
		name      string
		attribute string
		values    [][]byte
		want      []string
	}

	tests := []testCase{
		{"plain text", "cn", [][]byte{[]byte("Jane Doe")}, []string{"Jane Doe"}},
		{"multi valued keeps order", "mail", [][]byte{[]byte("a@x"), []byte("b@x")}, []string{"a@x", "b@x"}},
		{"guid rendered as uuid", "objectGUID", [][]byte{adGUID}, []string{"01020304-0506-0708-090a-0b0c0d0e0f10"}},
		{"guid lookup ignores case", "OBJECTGUID", [][]byte{adGUID}, []string{"01020304-0506-0708-090a-0b0c0d0e0f10"}},
		{"sid rendered", "objectSid", [][]byte{sid}, []string{"S-1-5-21-1-2-3-500"}},
		{"invalid utf8 dropped", "thumbnailPhoto", [][]byte{{0xff, 0xfe, 0x00}}, []string{}},
		{"invalid value dropped, valid kept", "description", [][]byte{{0xc3, 0x28}, []byte("ok")}, []string{"ok"}},
		{"short guid dropped", "objectGUID", [][]byte{{0x01, 0x02}}, []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, transformers.Normalize(tc.attribute, tc.values))
		})
	}
}

func TestConvertSIDToString_Short(t *testing.T) {
	_, err := transformers.ConvertSIDToString([]byte{0x01, 0x02})
	assert.Error(t, err)

	// claims two sub-authorities but carries one
	_, err = transformers.ConvertSIDToString([]byte{0x01, 0x02, 0, 0, 0, 0, 0, 0x05, 0x15, 0, 0, 0})
	assert.Error(t, err)
}

func TestParseFiletime(t *testing.T) {
	got, err := transformers.ParseFiletime("132223104000000000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = transformers.ParseFiletime("116444736000000000")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(0, 0).UTC(), got)

	_, err = transformers.ParseFiletime("yesterday")
	assert.Error(t, err)

	_, err = transformers.ParseFiletime("9223372036854775807")
	assert.Error(t, err)
}

func TestTimeToFiletime_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 6, 30, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, ts, transformers.FiletimeToTime(transformers.TimeToFiletime(ts)))
}

package artifacts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"f0oster/adsweep/classifier"
)

const (
	// TimestampLayout is appended to every artifact name; microseconds keep names
	// from the same scan distinct.
	TimestampLayout = "2006_01_02_T150405.000000"

	MachinePrefix = "user_expiration_table"
	HumanPrefix   = "user_expiration"

	ContentTypeJSON = "application/json"
	ContentTypeHTML = "text/html; charset=utf-8"
)

// Artifact is a generated report ready to be stored.
type Artifact struct {
	FileName      string
	Content       []byte
	ContentType   string
	RawScanResult bool
}

// Uploaded references an artifact that has been written to the object store.
type Uploaded struct {
	FileName       string `json:"file_name"`
	URL            string `json:"url"`
	RawScanResults bool   `json:"raw_scan_results"`
}

type Generator struct {
	Now func() time.Time
}

func (g Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// FileName builds <prefix>_<timestamp>.<ext>.
func FileName(prefix, ext string, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, at.Format(TimestampLayout), ext)
}

// Generate renders the machine-readable JSON and the human-readable HTML reports
// for bucket. Only the JSON one is flagged as the raw scan result.
func (g Generator) Generate(bucket classifier.StaleBucket) (machine Artifact, human Artifact, err error) {
	if bucket == nil {
		bucket = classifier.StaleBucket{}
	}
	generated := g.now()

	raw, err := json.Marshal(bucket)
	if err != nil {
		return Artifact{}, Artifact{}, fmt.Errorf("encode scan results: %w", err)
	}
	machine = Artifact{
		FileName:      FileName(MachinePrefix, "json", generated),
		Content:       raw,
		ContentType:   ContentTypeJSON,
		RawScanResult: true,
	}

	var buf bytes.Buffer
	if err := renderTable(&buf, bucket, generated); err != nil {
		return Artifact{}, Artifact{}, fmt.Errorf("render report table: %w", err)
	}
	human = Artifact{
		FileName:    FileName(HumanPrefix, "html", generated),
		Content:     buf.Bytes(),
		ContentType: ContentTypeHTML,
	}

	return machine, human, nil
}

// Decode parses a machine artifact back into a bucket.
func Decode(content []byte) (classifier.StaleBucket, error) {
	var bucket classifier.StaleBucket
	if err := json.Unmarshal(content, &bucket); err != nil {
		return nil, fmt.Errorf("decode scan results: %w", err)
	}
	return bucket, nil
}

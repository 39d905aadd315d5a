package artifacts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"f0oster/adsweep/classifier"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

type field struct {
	Key   string
	Value string
}

// Headers returns the field names of the first record in the first populated bucket,
// taking buckets in ascending threshold order.
func Headers(bucket classifier.StaleBucket) ([]string, error) {
	for _, key := range bucket.Keys() {
		users := bucket[key]
		if len(users) == 0 {
			continue
		}
		fields, err := recordFields(users[0])
		if err != nil {
			return nil, err
		}
		headers := make([]string, 0, len(fields))
		for _, f := range fields {
			headers = append(headers, f.Key)
		}
		return headers, nil
	}
	return []string{}, nil
}

// recordFields flattens a record into its JSON fields, in encoding order.
func recordFields(record any) ([]field, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		fields = append(fields, field{Key: key, Value: fmt.Sprint(value)})
	}
	return fields, nil
}

func renderTable(w io.Writer, bucket classifier.StaleBucket, generated time.Time) error {
	headers, err := Headers(bucket)
	if err != nil {
		return err
	}

	headerCells := make([]Node, 0, len(headers)+1)
	if len(headers) > 0 {
		headerCells = append(headerCells, Th(Text("threshold")))
	}
	for _, h := range headers {
		headerCells = append(headerCells, Th(Text(h)))
	}

	var rows []Node
	for _, key := range bucket.Keys() {
		for _, user := range bucket[key] {
			fields, err := recordFields(user)
			if err != nil {
				return err
			}
			values := make(map[string]string, len(fields))
			for _, f := range fields {
				values[f.Key] = f.Value
			}
			cells := make([]Node, 0, len(headers)+1)
			cells = append(cells, Td(Text(key)))
			for _, h := range headers {
				cells = append(cells, Td(Text(values[h])))
			}
			rows = append(rows, Tr(Group(cells)))
		}
	}

	page := Doctype(
		HTML(
			Lang("en"),
			Head(
				Meta(Charset("utf-8")),
				TitleEl(Text("User Expiration Report")),
				StyleEl(Text("table{border-collapse:collapse}th,td{border:1px solid #ccc;padding:4px 8px;text-align:left}")),
			),
			Body(
				H1(Text("User Expiration Report")),
				P(Text("Generated "+generated.Format(time.RFC1123))),
				Table(
					THead(Tr(Group(headerCells))),
					TBody(Group(rows)),
				),
			),
		),
	)
	return page.Render(w)
}

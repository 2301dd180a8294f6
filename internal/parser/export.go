package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/mod/semver"

	"github.com/wesm/clinicview/internal/db"
	"github.com/wesm/clinicview/internal/timeutil"
)

// SupportedMajor is the export format major version understood
// by this parser.
const SupportedMajor = "v1"

// documentNamespace seeds content-derived ids for documents that
// carry none, so re-importing the same line yields the same id.
var documentNamespace = uuid.NewSHA1(
	uuid.NameSpaceURL, []byte("clinicview:documents"),
)

// dateKeys lists, per collection, the fields holding the date
// used for window queries, most specific first.
var dateKeys = map[string][]string{
	db.CollectionSessions: {"date", "sessionDate", "scheduledAt", "startTime"},
	db.CollectionPatients: {"createdAt", "created_at", "registeredAt"},
	db.CollectionAlerts:   {"createdAt", "created_at", "date"},
}

// checkHeader reports whether line is an export header and
// validates its declared format.
func checkHeader(line string) (string, bool, error) {
	if gjson.Get(line, "kind").Str != "header" {
		return "", false, nil
	}
	format := gjson.Get(line, "format").Str
	if !semver.IsValid(format) {
		return format, true, fmt.Errorf(
			"%w: %q is not a semantic version",
			ErrUnsupportedFormat, format,
		)
	}
	if semver.Major(format) != SupportedMajor {
		return format, true, fmt.Errorf(
			"%w: %s (want %s.x)",
			ErrUnsupportedFormat, format, SupportedMajor,
		)
	}
	return format, true, nil
}

// ParseFile reads the export at path. centerID is assigned to
// documents that do not name their own center.
func ParseFile(path, centerID string) (ParseResult, error) {
	f, err := openNoFollow(path)
	if err != nil {
		return ParseResult{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	res, err := ParseReader(f, path, centerID)
	if err != nil {
		return res, fmt.Errorf("parsing %s: %w", path, err)
	}
	return res, nil
}

// ParseReader reads an export from r. name is used to infer the
// collection of documents that lack a "collection" field. A
// header, when present, must be the first document.
func ParseReader(
	r io.Reader, name, centerID string,
) (ParseResult, error) {
	res := ParseResult{Path: name}
	fallback := CollectionFromName(name)
	lr := newLineReader(r, maxLineSize)

	first := true
	for {
		line, ok := lr.next()
		if !ok {
			break
		}
		line = strings.TrimSpace(line)
		if !gjson.Valid(line) {
			res.Skipped++
			first = false
			continue
		}
		if format, isHeader, err := checkHeader(line); isHeader {
			if err != nil {
				return res, err
			}
			if !first {
				return res, fmt.Errorf(
					"line %d: header must be the first document",
					lr.line(),
				)
			}
			res.Format = format
			first = false
			continue
		}
		first = false

		doc, ok := ParseLine(line, fallback, centerID)
		if !ok {
			res.Skipped++
			continue
		}
		doc.Line = lr.line()
		res.Documents = append(res.Documents, doc)
	}
	res.Skipped += lr.oversized
	if err := lr.Err(); err != nil {
		return res, fmt.Errorf("reading: %w", err)
	}
	return res, nil
}

// ParseLine turns one JSON document into a Document. It returns
// false when the document is not an object or belongs to no
// known collection.
func ParseLine(
	line, fallbackCollection, centerID string,
) (Document, bool) {
	v := gjson.Parse(line)
	if !v.IsObject() {
		return Document{}, false
	}

	collection := fallbackCollection
	if c := v.Get("collection"); c.Exists() {
		collection = NormalizeCollection(c.String())
	}
	if collection == "" {
		return Document{}, false
	}

	id := firstString(v, "id", "_id", "uuid")
	if id == "" {
		id = uuid.NewSHA1(
			documentNamespace, []byte(collection+"\x00"+line),
		).String()
	}

	center := firstString(v, "centerId", "center_id", "clinicId")
	if center == "" {
		center = centerID
	}

	doc := Document{
		Collection: collection,
		ID:         id,
		CenterID:   center,
		Body:       line,
	}
	doc.Date, _ = firstDate(v, dateKeys[collection]...)
	return doc, true
}

// ToRecord converts a document for storage.
func (d Document) ToRecord(sourcePath string) db.Record {
	r := db.Record{
		Collection: d.Collection,
		ID:         d.ID,
		CenterID:   d.CenterID,
		Body:       d.Body,
		SourcePath: sourcePath,
	}
	if !d.Date.IsZero() {
		r.Date = timeutil.Ptr(d.Date)
	}
	return r
}

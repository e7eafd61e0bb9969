// Package dicomimage extracts descriptive metadata from parsed DICOM
// datasets and normalizes their pixel data into displayable 8-bit
// previews. It is shared by the REST service and the inspection CLI.
package dicomimage

import (
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// SentinelNA is substituted for tags absent from an otherwise readable
// container, so extraction stays total and rendering never sees a hole.
const SentinelNA = "N/A"

// MetadataField is one named descriptive value pulled from a container.
type MetadataField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// metadataTags is the fixed extraction order. Rows/Columns carry integer
// values; everything else is string-typed in practice, but TagString
// tolerates either.
var metadataTags = []struct {
	name string
	t    tag.Tag
}{
	{"PatientName", tag.PatientName},
	{"PatientID", tag.PatientID},
	{"PatientBirthDate", tag.PatientBirthDate},
	{"PatientSex", tag.PatientSex},
	{"StudyInstanceUID", tag.StudyInstanceUID},
	{"StudyDate", tag.StudyDate},
	{"StudyTime", tag.StudyTime},
	{"StudyDescription", tag.StudyDescription},
	{"SeriesNumber", tag.SeriesNumber},
	{"SeriesDescription", tag.SeriesDescription},
	{"InstanceNumber", tag.InstanceNumber},
	{"Modality", tag.Modality},
	{"Rows", tag.Rows},
	{"Columns", tag.Columns},
}

// ExtractMetadata returns the fixed field set for a parsed container.
// Absent or unreadable tags become "N/A"; the result is always complete,
// never partial. Real-world files omit optional tags all the time, so
// this isolates rendering from source irregularities.
func ExtractMetadata(ds *dicom.Dataset) []MetadataField {
	fields := make([]MetadataField, 0, len(metadataTags))
	for _, mt := range metadataTags {
		v := TagString(ds, mt.t)
		if v == "" {
			v = SentinelNA
		}
		fields = append(fields, MetadataField{Name: mt.name, Value: v})
	}
	return fields
}

// TagString extracts the first value for the given tag as a clean string,
// or "" when the tag is missing or holds nothing usable. Integer-valued
// tags (Rows, Columns, SeriesNumber on some writers) are formatted in
// decimal rather than panicking through MustGetStrings.
func TagString(ds *dicom.Dataset, t tag.Tag) string {
	if ds == nil {
		return ""
	}
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil || el.Value == nil {
		return ""
	}
	switch v := el.Value.GetValue().(type) {
	case []string:
		for _, s := range v {
			if strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	case []int:
		if len(v) > 0 {
			return strconv.Itoa(v[0])
		}
	case []float64:
		if len(v) > 0 {
			return strconv.FormatFloat(v[0], 'g', -1, 64)
		}
	}
	return ""
}

// PatientFields pulls the patient name/id used on file records; either
// may come back "" when the tag is absent.
func PatientFields(ds *dicom.Dataset) (name, id string) {
	return TagString(ds, tag.PatientName), TagString(ds, tag.PatientID)
}

package flatten

import "github.com/clidram/medrag/pkg/connector"

// patientFlattener renders a patient profile as a one-paragraph demographic
// summary.
type patientFlattener struct {
	cfg Config
}

func (f *patientFlattener) Flatten(rec connector.Record) ([]Chunk, error) {
	var d doc
	d.addf("Patient Profile: %s", rec.Str("name"))
	if seq := rec.Str("patient_seq"); seq != "" {
		d.addf("(ID: %s)", seq)
	}
	if dob := rec.Str("date_of_birth"); dob != "" {
		d.addf("\nDate of Birth: %s", dob)
	}
	if age := rec.Int64("age"); age > 0 {
		d.addf("\nAge: %d years", age)
	}
	if gender := rec.Str("gender"); gender != "" {
		d.addf("\nGender: %s", capitalize(gender))
	}
	if phone := rec.Str("phone"); phone != "" {
		d.addf("\nPhone: %s", phone)
	}
	if email := rec.Str("email"); email != "" {
		d.addf("\nEmail: %s", email)
	}
	if city := rec.Str("city"); city != "" {
		d.addf("\nCity: %s", city)
	}

	meta := map[string]any{
		"source_kind":   connector.KindPatient,
		"source_id":     rec.Int64("id"),
		"patient_id":    rec.Int64("id"),
		"patient_seq":   rec.Str("patient_seq"),
		"patient_name":  rec.Str("name"),
		"date_of_birth": rec.Str("date_of_birth"),
		"gender":        rec.Str("gender"),
		"city":          rec.Str("city"),
		"indexed_at":    indexedAt(),
	}

	return finalize(f.cfg, d.String(), meta), nil
}

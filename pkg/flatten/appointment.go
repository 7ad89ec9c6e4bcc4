package flatten

import (
	"fmt"

	"github.com/clidram/medrag/pkg/connector"
)

// appointmentFlattener renders a visit booking as a short narrative. The
// EMR sends the patient sequence under "patient_id" and the database id
// under "patient_res_id"; metadata keeps both, under distinct keys, for
// later filtering.
type appointmentFlattener struct {
	cfg Config
}

func (f *appointmentFlattener) Flatten(rec connector.Record) ([]Chunk, error) {
	var d doc
	d.addf("Appointment %s", rec.Str("appointment_number"))
	d.addf("Date: %s", rec.Str("appoint_date"))
	d.addf("Status: %s", rec.Str("appoint_state"))

	if name := rec.Str("patient_name"); name != "" {
		d.addf("\nPatient: %s", name)
		if seq := rec.Str("patient_id"); seq != "" {
			d.addf("(ID: %s)", seq)
		}
		if age := rec.Int64("patient_age"); age > 0 {
			d.addf(", %d years old", age)
		}
		if gender := rec.Str("patient_gender"); gender != "" {
			d.addf(", %s", capitalize(gender))
		}
	}

	if name := rec.Str("doctor_name"); name != "" {
		d.addf("\nDoctor: %s", name)
		if designation := rec.Str("doctor_designation"); designation != "" {
			d.addf("(%s)", designation)
		}
	}

	if span := appointmentTime(rec); span != "" {
		d.add("\nTime: " + span)
	}
	if desc := rec.Str("description"); desc != "" {
		d.addf("\nChief Complaint: %s", desc)
	}
	if fee := rec.Float("amount_total"); fee > 0 {
		d.addf("\nConsultation Fee: %s", trimFloat(fee))
	}

	meta := map[string]any{
		"source_kind":       connector.KindAppointment,
		"source_id":         rec.Int64("id"),
		"patient_id":        nonZero(rec.Int64("patient_res_id")),
		"patient_seq":       rec.Str("patient_id"),
		"patient_name":      rec.Str("patient_name"),
		"doctor_id":         nonZero(rec.Int64("doctor_res_id")),
		"doctor_name":       rec.Str("doctor_name"),
		"appointment_date":  rec.Str("appoint_date"),
		"appointment_state": rec.Str("appoint_state"),
		"indexed_at":        indexedAt(),
	}

	return finalize(f.cfg, d.String(), meta), nil
}

// appointmentTime prefers the full start/stop timestamps and falls back to
// the fractional-hour slot fields older bookings carry.
func appointmentTime(rec connector.Record) string {
	start, okStart := rec.Time("app_dt_start")
	stop, okStop := rec.Time("app_dt_stop")
	if okStart && okStop {
		return start.Format("15:04") + " - " + stop.Format("15:04")
	}

	from, to := rec.Float("time_from"), rec.Float("time_to")
	if from > 0 || to > 0 {
		return formatSlot(from) + " - " + formatSlot(to)
	}
	return ""
}

// formatSlot converts a fractional hour such as 14.5 to "14:30".
func formatSlot(v float64) string {
	hours := int(v)
	minutes := int((v - float64(hours)) * 60)
	return fmt.Sprintf("%02d:%02d", hours, minutes)
}

// nonZero maps a missing numeric id to nil so it gets pruned.
func nonZero(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

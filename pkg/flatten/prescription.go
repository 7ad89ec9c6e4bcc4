package flatten

import (
	"strings"

	"github.com/clidram/medrag/pkg/connector"
)

// prescriptionFlattener assembles the full clinical encounter document:
// header, diagnoses, complaints, medication lines, investigations, vitals,
// scores, examinations, histories and follow-up notes, in a fixed section
// order. Empty sections are omitted. This is the one kind that routinely
// exceeds the chunking threshold.
type prescriptionFlattener struct {
	cfg Config
}

func (f *prescriptionFlattener) Flatten(rec connector.Record) ([]Chunk, error) {
	var d doc

	d.addf("Prescription %s", orUnknown(rec.Str("name")))
	d.addf("Date: %s", orUnknown(rec.Str("date")))

	if name := rec.Str("patient"); name != "" {
		d.addf("\nPatient: %s", name)
		if seq := rec.Str("patient_seq"); seq != "" {
			d.addf("(ID: %s)", seq)
		}
	}
	if name := rec.Str("physician"); name != "" {
		d.addf("\nPhysician: %s", name)
	}

	writeDiagnoses(&d, rec.Maps("diagnoses"))
	writeComplaints(&d, rec.Maps("complaints"))
	writeMedications(&d, rec.Maps("medications"))

	if invs := rec.Maps("investigations"); len(invs) > 0 {
		d.add("\n\nInvestigations Ordered:")
		for _, inv := range invs {
			if name := inv.Str("name"); name != "" {
				d.addf("\n- %s", name)
			}
		}
	}
	if res := rec.Str("investigation_result"); res != "" {
		d.addf("\n\nInvestigation Results:\n%s", res)
	}

	writeVitals(&d, rec)
	writeClinicalScores(&d, rec)
	writePhysicalExams(&d, rec.Map("physical_examinations"))

	if hist := rec.Str("patient_history"); hist != "" {
		d.addf("\n\nGeneral Patient History:\n%s", hist)
	}
	writeOldHistory(&d, rec.Maps("old_history"))
	writeMedicalHistory(&d, rec.Maps("medical_history"))

	if signs := rec.Maps("signs"); len(signs) > 0 {
		d.add("\n\nExaminations / Signs:")
		for _, sign := range signs {
			if name := sign.Str("name"); name != "" {
				line := "\n- " + name
				if loc := sign.Str("location"); loc != "" {
					line += " at " + loc
				}
				d.add(line)
			}
		}
	}

	writeExercises(&d, rec.Maps("exercises"))
	writeOrtho(&d, rec.Maps("ortho_items"))

	if procs := rec.Maps("procedures"); len(procs) > 0 {
		d.add("\n\nProcedures Performed:")
		for _, proc := range procs {
			if name := proc.Str("name"); name != "" {
				d.addf("\n- %s", name)
			}
		}
	}

	writePairList(&d, "\n\nFamily History:", rec.Maps("family_history"), "condition", "result")
	writePairList(&d, "\n\nSocial History:", rec.Maps("social_history"), "habit", "result")

	if res := rec.Str("procedure_result"); res != "" {
		d.addf("\n\nProcedure Results:\n%s", res)
	}

	writeStatusUpdates(&d, rec.Map("status_updates"))

	if days := rec.Int64("next_visit_days"); days > 0 {
		d.add("\n\nFollow-Up Schedule:")
		d.addf("\n- Recall Timeframe: %d days", days)
	}
	if notes := rec.Str("advice_notes"); notes != "" {
		d.addf("\n\nAdvice/Notes:\n%s", notes)
	}
	if comments := rec.Str("additional_comments"); comments != "" {
		d.addf("\n\nAdditional Comments:\n%s", comments)
	}
	if details := rec.Str("patient_details"); details != "" {
		d.addf("\nPatient Details (Internal Notes):\n%s", details)
	}
	if extra := rec.Str("followup_notes"); extra != "" {
		d.addf("\nExtra Notes:\n%s", extra)
	}
	if desc := rec.Str("description"); desc != "" {
		d.addf("\n\nDescription/Summary:\n%s", desc)
	}

	meta := prescriptionMetadata(rec)
	return finalize(f.cfg, d.String(), meta), nil
}

// prescriptionMetadata carries the identifying scalars plus verbatim copies
// of the structured sub-lists so downstream consumers can recover structure
// without re-parsing the narrative.
func prescriptionMetadata(rec connector.Record) map[string]any {
	var codes []any
	for _, diag := range rec.Maps("diagnoses") {
		if code := diag.Str("code"); code != "" {
			codes = append(codes, code)
		} else if name := diag.Str("name"); name != "" {
			codes = append(codes, name)
		}
	}

	return map[string]any{
		"source_kind":       connector.KindPrescription,
		"source_id":         rec.Int64("id"),
		"patient_id":        nonZero(rec.Int64("patient_res_id")),
		"patient_seq":       rec.Str("patient_seq"),
		"patient_name":      rec.Str("patient"),
		"physician_id":      nonZero(rec.Int64("physician_res_id")),
		"physician_name":    rec.Str("physician"),
		"prescription_date": rec.Str("date"),
		"state":             rec.Str("state"),
		"disease":           rec.Str("disease"),
		"description":       rec.Str("description"),
		"diagnosis_codes":   codes,
		"medications":       rec["medications"],
		"diagnoses":         rec["diagnoses"],
		"complaints":        rec["complaints"],
		"investigations":    rec["investigations"],
		"clinical_scalars":  rec["vitals"],
		"clinical_scores":   rec["clinical_scores"],
		"status_updates":    rec["status_updates"],
		"indexed_at":        indexedAt(),
	}
}

func writeDiagnoses(d *doc, diags []connector.Record) {
	if len(diags) == 0 {
		return
	}
	d.add("\n\nDiagnosis:")
	for _, diag := range diags {
		name := diag.Str("name")
		if name == "" {
			continue
		}
		line := "\n- Primary: " + name
		if code := diag.Str("code"); code != "" {
			line += " (ICD: " + code + ")"
		}
		if long := diag.Str("long_name"); long != "" {
			line += " - " + long
		}
		d.add(line)
	}
}

func writeComplaints(d *doc, complaints []connector.Record) {
	if len(complaints) == 0 {
		return
	}
	d.add("\n\nChief Complaints:")
	for _, c := range complaints {
		text := c.Str("name")
		if period := c.Str("period"); period != "" {
			text += " for " + period
		}
		if loc := c.Str("location"); loc != "" {
			text += " at " + loc
		}
		if text != "" {
			d.addf("\n- %s", text)
		}
	}
}

func writeMedications(d *doc, meds []connector.Record) {
	if len(meds) == 0 {
		return
	}
	d.add("\n\nMedications Prescribed:")
	for _, med := range meds {
		name := med.Str("name")
		if name == "" {
			continue
		}
		line := "\n- " + name
		if qty := med.Float("quantity"); qty > 0 {
			line += " x" + trimFloat(qty)
		}
		if days := med.Int64("days"); days > 0 {
			line += " for " + trimFloat(float64(days)) + " days"
		}
		if instr := med.Str("instruction"); instr != "" {
			line += "\n  Special Instructions: " + instr
		}
		d.add(line)
	}
}

func writeVitals(d *doc, rec connector.Record) {
	vitals := rec.Map("vitals")
	bmis := rec.Maps("bmi_records")
	if len(vitals) == 0 && len(bmis) == 0 {
		return
	}

	var lines []string
	addScalar := func(label, key, unit string) {
		if v := vitals.Float(key); v > 0 {
			lines = append(lines, "\n- "+label+": "+trimFloat(v)+unit)
		}
	}
	addScalar("Weight", "weight", "")
	addScalar("Height", "height", "")
	addScalar("BMI", "bmi", "")
	if bp := vitals.Str("blood_pressure"); bp != "" {
		lines = append(lines, "\n- Blood Pressure: "+bp+" mmHg")
	}
	addScalar("Pulse", "pulse", " bpm")
	addScalar("Respiratory Rate", "respiratory_rate", " /min")
	addScalar("Temperature", "temperature", "")
	addScalar("SpO2", "spo2", "%")
	addScalar("Random Blood Sugar (RBS)", "rbs", "")

	for _, bmi := range bmis {
		if w := bmi.Float("weight"); w > 0 {
			lines = append(lines, "\n- Weight: "+trimFloat(w))
		}
		if h := bmi.Float("height"); h > 0 {
			lines = append(lines, "\n- Height: "+trimFloat(h))
		}
		if v := bmi.Float("bmi"); v > 0 {
			lines = append(lines, "\n- BMI: "+trimFloat(v))
		}
	}

	if len(lines) == 0 {
		return
	}
	d.add("\n\nVital Signs:")
	for _, line := range lines {
		d.add(line)
	}
}

func writeClinicalScores(d *doc, rec connector.Record) {
	scores := rec.Map("clinical_scores")
	gcs := rec.Maps("gcs_scores")
	if len(scores) == 0 && len(gcs) == 0 {
		return
	}

	var lines []string
	if v := scores.Float("pain_score"); v > 0 {
		lines = append(lines, "\n- Pain Score: "+trimFloat(v))
	}
	if v := scores.Str("motor_power"); v != "" {
		lines = append(lines, "\n- Motor Power: "+v)
	}
	if v := scores.Float("nihss"); v > 0 {
		lines = append(lines, "\n- NIHSS (Neuro Score): "+trimFloat(v))
	}
	if v := scores.Str("dyspnea"); v != "" {
		lines = append(lines, "\n- Dyspnea (NYHA): Grade "+strings.ToUpper(v))
	}
	if v := scores.Str("cardiac_rythm"); v != "" {
		lines = append(lines, "\n- Cardiac Rhythm: "+v)
	}
	left, right := scores.Str("pupil_reaction"), scores.Str("pupil_reaction_right")
	if left != "" || right != "" {
		lines = append(lines, "\n- Pupil Reaction: Left ["+orNA(left)+"] / Right ["+orNA(right)+"]")
	}
	for i, g := range gcs {
		line := "\n- Glasgow Coma Scale (Record #" + trimFloat(float64(i+1)) + "): Total Score = " + trimFloat(g.Float("total"))
		if m := g.Str("motor"); m != "" {
			line += "\n  * Motor Response: " + m
		}
		if v := g.Str("verbal"); v != "" {
			line += "\n  * Verbal Response: " + v
		}
		if e := g.Str("eye"); e != "" {
			line += "\n  * Eye Response: " + e
		}
		lines = append(lines, line)
	}
	if len(gcs) == 0 {
		if v := scores.Float("glassgow_coma_scale"); v > 0 {
			lines = append(lines, "\n- Glasgow Coma Scale (Scalar): "+trimFloat(v))
		}
	}

	if len(lines) == 0 {
		return
	}
	d.add("\n\nClinical Scores & Classifications:")
	for _, line := range lines {
		d.add(line)
	}
}

// writePhysicalExams renders the per-board examination rows when present
// and falls back to the scalar columns older encounters carry.
func writePhysicalExams(d *doc, exams connector.Record) {
	if len(exams) == 0 {
		return
	}

	fields := []struct{ key, label string }{
		{"general", "General"},
		{"heent", "HEENT"},
		{"cvs", "CVS"},
		{"respiratory", "Respiratory"},
		{"abdomen", "Abdomen"},
		{"msk", "Musculoskeletal"},
		{"cns", "CNS Screens"},
	}

	var lines []string
	boards := exams.Maps("boards")
	for i, board := range boards {
		lines = append(lines, "\n- Physical Board #"+trimFloat(float64(i+1))+":")
		for _, f := range fields {
			if v := board.Str(f.key); v != "" {
				lines = append(lines, "\n  * "+f.label+": "+v)
			}
		}
	}
	if len(boards) == 0 {
		for _, f := range fields {
			if v := exams.Str(f.key); v != "" {
				lines = append(lines, "\n- "+f.label+": "+v)
			}
		}
	}

	if len(lines) == 0 {
		return
	}
	d.add("\n\nPhysical Examinations:")
	for _, line := range lines {
		d.add(line)
	}
}

func writeOldHistory(d *doc, items []connector.Record) {
	if len(items) == 0 {
		return
	}
	d.add("\n\nOld History:")
	for _, h := range items {
		line := joinPresent(" - ",
			h.Str("name"),
			prefixed("Period: ", h.Str("period")),
			prefixed("Progression: ", h.Str("progression")))
		if line != "" {
			d.addf("\n- %s", line)
		}
	}
}

func writeMedicalHistory(d *doc, items []connector.Record) {
	if len(items) == 0 {
		return
	}
	d.add("\n\nMedical History:")
	for _, h := range items {
		line := joinPresent(" - ",
			h.Str("name"),
			prefixed("Date: ", h.Str("date")),
			prefixed("Medication: ", h.Str("medication")))
		if line != "" {
			d.addf("\n- %s", line)
		}
	}
}

func writeExercises(d *doc, items []connector.Record) {
	if len(items) == 0 {
		return
	}
	d.add("\n\nPrescribed Exercises:")
	for _, ex := range items {
		name := ex.Str("name")
		if name == "" {
			continue
		}
		line := "\n- " + name
		if loc := ex.Str("location"); loc != "" {
			line += " for " + loc
		}
		if move := ex.Str("move"); move != "" {
			line += " (Move: " + move + ")"
		}
		if reps := ex.Str("reps"); reps != "" {
			line += " (Reps/Duration: " + reps + ")"
		}
		d.add(line)
	}
}

func writeOrtho(d *doc, items []connector.Record) {
	if len(items) == 0 {
		return
	}
	d.add("\n\nOrthopedic Items Prescribed:")
	for _, o := range items {
		name := o.Str("name")
		if name == "" {
			continue
		}
		line := "\n- " + name
		if loc := o.Str("location"); loc != "" {
			line += " for " + loc
		}
		if side := o.Str("side"); side != "" {
			line += " (" + side + " side)"
		}
		d.add(line)
	}
}

// writePairList renders history rows that are a (name, result) pair.
func writePairList(d *doc, header string, items []connector.Record, nameKey, resultKey string) {
	if len(items) == 0 {
		return
	}
	var lines []string
	for _, item := range items {
		line := joinPresent(" - ",
			item.Str(nameKey),
			prefixed("Result: ", item.Str(resultKey)))
		if line != "" {
			lines = append(lines, "\n- "+line)
		}
	}
	if len(lines) == 0 {
		return
	}
	d.add(header)
	for _, line := range lines {
		d.add(line)
	}
}

func writeStatusUpdates(d *doc, updates connector.Record) {
	if len(updates) == 0 {
		return
	}
	if v := updates.Str("symptom_status"); v != "" {
		d.addf("\n\nSymptom Status: %s", v)
	}
	if v := updates.Str("medication_adherence"); v != "" {
		d.addf("\nMedication Adherence: %s", v)
	}
	if v := updates.Str("performance_status_update"); v != "" {
		d.addf("\nPerformance Status Update: %s", v)
	}
	if v := updates.Str("counseling_behavioral_response"); v != "" {
		d.addf("\nCounseling & Behavioral Response: %s", v)
	}
	if v := updates.Str("side_effects"); v != "" {
		d.addf("\n\nSide Effects/Toxicities:\n%s", v)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func prefixed(prefix, s string) string {
	if s == "" {
		return ""
	}
	return prefix + s
}

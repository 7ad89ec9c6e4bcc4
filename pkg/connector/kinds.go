package connector

import "fmt"

// Source kinds understood by the connector. These are the names used across
// the pipeline, the vector store metadata, and the API surface.
const (
	KindAppointment  = "appointment"
	KindPrescription = "prescription"
	KindPatient      = "patient"
	KindDisease      = "disease"
)

// kindInfo maps a source kind to its remote model name and endpoint segment.
type kindInfo struct {
	// remoteModel is the model name the EMR uses for this kind.
	remoteModel string

	// endpoint is the path segment of the bulk-export routes.
	endpoint string
}

var kinds = map[string]kindInfo{
	KindAppointment:  {remoteModel: "wk.appointment", endpoint: "appointments"},
	KindPrescription: {remoteModel: "prescription.order.knk", endpoint: "prescriptions"},
	KindPatient:      {remoteModel: "res.partner", endpoint: "patients"},
	KindDisease:      {remoteModel: "medical.disease", endpoint: "diseases"},
}

// Kinds returns the supported source kinds in a stable order.
func Kinds() []string {
	return []string{KindAppointment, KindPrescription, KindPatient, KindDisease}
}

// IsKind reports whether the given name is a supported source kind.
func IsKind(name string) bool {
	_, ok := kinds[name]
	return ok
}

// RemoteModel returns the EMR model name for a source kind.
func RemoteModel(kind string) (string, error) {
	info, ok := kinds[kind]
	if !ok {
		return "", fmt.Errorf("unknown source kind: %q", kind)
	}
	return info.remoteModel, nil
}

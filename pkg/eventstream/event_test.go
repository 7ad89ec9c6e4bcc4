package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clidram/medrag/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals RecordIndexedEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.RecordIndexedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeRecordIndexed,
			EventID:       "evt_123",
			EmittedAt:     now,
			SourceKind:    "prescription",
			SourceID:      42,
			Chunks:        3,
			Incremental:   true,
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source_kind"))
		Expect(got).To(HaveKey("source_id"))
		Expect(got).To(HaveKey("chunks"))
		Expect(got).To(HaveKey("incremental"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeRecordIndexed).To(Equal("medrag.record.indexed"))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).NotTo(BeNil())
		Expect(eventstream.ErrNilEvent).To(MatchError("nil event"))
	})
})

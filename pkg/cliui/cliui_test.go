package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clidram/medrag/pkg/cliui"
)

var _ = Describe("Cliui", func() {
	Describe("Step", func() {
		It("prints the message with a success mark when fn succeeds", func() {
			var buf bytes.Buffer
			err := cliui.Step(&buf, "indexing", func() error { return nil })

			Expect(err).NotTo(HaveOccurred())
			Expect(buf.String()).To(ContainSubstring("indexing"))
			Expect(buf.String()).To(ContainSubstring("✓"))
		})

		It("returns fn's error and prints a failure mark", func() {
			var buf bytes.Buffer
			boom := errors.New("boom")
			err := cliui.Step(&buf, "indexing", func() error { return boom })

			Expect(err).To(MatchError(boom))
			Expect(buf.String()).To(ContainSubstring("✗"))
		})

		It("ends the line after the spinner stops", func() {
			var buf bytes.Buffer
			cliui.Step(&buf, "slow step", func() error {
				time.Sleep(200 * time.Millisecond)
				return nil
			})

			out := buf.String()
			Expect(out[len(out)-1]).To(Equal(byte('\n')))
		})
	})

	Describe("FormatDuration", func() {
		It("renders sub-second durations in milliseconds", func() {
			Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		})

		It("renders seconds with one decimal", func() {
			Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
		})
	})

	Describe("RenderMarkdown", func() {
		It("keeps the content text", func() {
			out, err := cliui.RenderMarkdown("# Heading\n\nbody text")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("body text"))
		})
	})
})

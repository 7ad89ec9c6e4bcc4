package logger_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clidram/medrag/pkg/logger"
)

var _ = Describe("Logger", func() {
	Describe("NewLoggerWithWriters", func() {
		It("writes info messages to the provided writer", func() {
			var buf bytes.Buffer
			l := logger.NewLoggerWithWriters(false, &buf)
			l.Info("hello")
			l.Sync()

			Expect(buf.String()).To(ContainSubstring("hello"))
		})

		It("tags every line with the app name", func() {
			var buf bytes.Buffer
			l := logger.NewLoggerWithWriters(false, &buf)
			l.Info("tagged")
			l.Sync()

			Expect(buf.String()).To(ContainSubstring(`"app": "medrag"`))
		})

		It("emits debug messages when debug is enabled", func() {
			var buf bytes.Buffer
			l := logger.NewLoggerWithWriters(true, &buf)
			l.Debug("debug msg")
			l.Sync()

			Expect(buf.String()).To(ContainSubstring("debug msg"))
		})

		It("filters debug messages when debug is disabled", func() {
			var buf bytes.Buffer
			l := logger.NewLoggerWithWriters(false, &buf)
			l.Debug("hidden")
			l.Sync()

			Expect(buf.String()).To(BeEmpty())
		})

		It("fans out to multiple writers", func() {
			var buf1, buf2 bytes.Buffer
			l := logger.NewLoggerWithWriters(false, &buf1, &buf2)
			l.Info("multi")
			l.Sync()

			Expect(buf1.String()).To(ContainSubstring("multi"))
			Expect(buf2.String()).To(ContainSubstring("multi"))
		})
	})

	Describe("NewLogger", func() {
		It("returns a usable logger", func() {
			l := logger.NewLogger(false)
			Expect(l).NotTo(BeNil())
		})
	})
})

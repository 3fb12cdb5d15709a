package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"fieldops.dev/tabletwatch/pkg/logger"
)

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("should emit JSON records to the configured writer", func() {
			var buf bytes.Buffer
			log := logger.New(&logger.Config{Output: &buf, Level: slog.LevelInfo})

			log.Info("ingested submission", "device_id", "tablet_a")

			var record map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &record)).To(Succeed())
			Expect(record["msg"]).To(Equal("ingested submission"))
			Expect(record["device_id"]).To(Equal("tablet_a"))
		})

		It("should suppress records below the configured level", func() {
			var buf bytes.Buffer
			log := logger.New(&logger.Config{Output: &buf, Level: slog.LevelWarn})

			log.Info("dropped")
			Expect(buf.Len()).To(BeZero())

			log.Warn("kept")
			Expect(buf.Len()).NotTo(BeZero())
		})

		It("should fall back to defaults for a nil config", func() {
			Expect(logger.New(nil)).NotTo(BeNil())
		})
	})

	Describe("ParseLevel", func() {
		It("should map known names", func() {
			Expect(logger.ParseLevel("debug")).To(Equal(slog.LevelDebug))
			Expect(logger.ParseLevel("info")).To(Equal(slog.LevelInfo))
			Expect(logger.ParseLevel("warn")).To(Equal(slog.LevelWarn))
			Expect(logger.ParseLevel("warning")).To(Equal(slog.LevelWarn))
			Expect(logger.ParseLevel("error")).To(Equal(slog.LevelError))
		})

		It("should default unknown names to info", func() {
			Expect(logger.ParseLevel("verbose")).To(Equal(slog.LevelInfo))
		})
	})
})

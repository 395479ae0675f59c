package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/logger"
)

func decode(buf *bytes.Buffer) map[string]any {
	var parsed map[string]any
	Expect(json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed)).To(Succeed())
	return parsed
}

var _ = Describe("New", func() {
	It("writes text records at info by default", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf))
		l.Info("stream appended", "entity", "acme/alice")
		l.Debug("cursor loaded")

		Expect(buf.String()).To(ContainSubstring("stream appended"))
		Expect(buf.String()).To(ContainSubstring("entity=acme/alice"))
		Expect(buf.String()).NotTo(ContainSubstring("cursor loaded"))
	})

	It("emits debug records when enabled", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf), logger.WithDebug(true))
		l.Debug("cursor loaded")

		Expect(buf.String()).To(ContainSubstring("cursor loaded"))
	})

	It("sets the level by name", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf), logger.WithLevel("warn"))
		l.Info("quiet")
		l.Warn("derivation batch abandoned")

		Expect(buf.String()).NotTo(ContainSubstring("quiet"))
		Expect(buf.String()).To(ContainSubstring("derivation batch abandoned"))
	})

	It("ignores an unknown level name", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf), logger.WithLevel("loud"))
		l.Info("kept")

		Expect(buf.String()).To(ContainSubstring("kept"))
	})

	It("writes JSON records", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithPretty(true))
		l.Info("facts extracted", "count", 3)

		parsed := decode(&buf)
		Expect(parsed["msg"]).To(Equal("facts extracted"))
		Expect(parsed["count"]).To(BeNumerically("==", 3))
	})

	It("writes pretty records with a prefix", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true), logger.WithPrefix("threads"))
		l.Info("scheduler starting")

		Expect(buf.String()).To(ContainSubstring("threads"))
		Expect(buf.String()).To(ContainSubstring("scheduler starting"))
	})

	It("copies records to every writer", func() {
		var a, b bytes.Buffer
		l := logger.New(logger.WithWriters(&a, &b))
		l.Info("both")

		Expect(a.String()).To(ContainSubstring("both"))
		Expect(b.String()).To(ContainSubstring("both"))
	})
})

var _ = Describe("File", func() {
	It("appends JSON records to the file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "logs", "threads.log")

		l, closer, err := logger.File(path)
		Expect(err).NotTo(HaveOccurred())
		l.Info("first")
		l.Info("second")
		Expect(closer.Close()).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		Expect(lines).To(HaveLen(2))

		var parsed map[string]any
		Expect(json.Unmarshal([]byte(lines[1]), &parsed)).To(Succeed())
		Expect(parsed["msg"]).To(Equal("second"))
	})
})

var _ = Describe("Nop", func() {
	It("is disabled at every level", func() {
		l := logger.Nop()
		Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
		Expect(func() { l.With("k", "v").WithGroup("g").Error("msg") }).NotTo(Panic())
	})
})

type failing struct{ slog.Handler }

func (failing) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

var _ = Describe("Multi", func() {
	It("dispatches to every logger and skips nil", func() {
		var a, b bytes.Buffer
		multi := logger.Multi(
			logger.New(logger.WithWriter(&a)),
			nil,
			logger.New(logger.WithWriter(&b), logger.WithJSON(true)),
		)
		multi.Info("reminder dispatched", "event", 7)

		Expect(a.String()).To(ContainSubstring("reminder dispatched"))
		Expect(decode(&b)["event"]).To(BeNumerically("==", 7))
	})

	It("filters each logger at its own level", func() {
		var info, debug bytes.Buffer
		multi := logger.Multi(
			logger.New(logger.WithWriter(&info)),
			logger.New(logger.WithWriter(&debug), logger.WithDebug(true)),
		)
		multi.Debug("window fetched")

		Expect(info.String()).To(BeEmpty())
		Expect(debug.String()).To(ContainSubstring("window fetched"))
	})

	It("carries attributes and groups to children", func() {
		var buf bytes.Buffer
		multi := logger.Multi(logger.New(logger.WithWriter(&buf), logger.WithJSON(true)))
		multi.With("kind", "facts").WithGroup("batch").Info("applied", "size", 10)

		parsed := decode(&buf)
		Expect(parsed["kind"]).To(Equal("facts"))
		Expect(parsed["batch"]).To(HaveKeyWithValue("size", BeNumerically("==", 10)))
	})

	It("keeps writing after one handler fails", func() {
		var buf bytes.Buffer
		ok := logger.New(logger.WithWriter(&buf))
		broken := slog.New(failing{ok.Handler()})

		multi := logger.Multi(broken, ok)
		err := multi.Handler().Handle(context.Background(), slog.NewRecord(time.Time{}, slog.LevelInfo, "still here", 0))

		Expect(err).To(MatchError(ContainSubstring("disk full")))
		Expect(buf.String()).To(ContainSubstring("still here"))
	})
})

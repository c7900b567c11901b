package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When initialized with defaults", func() {
			So(Init(), ShouldBeNil)
			defer func() { So(Sync(), ShouldBeNil) }()

			Convey("Then Get returns a logger", func() {
				So(Get(), ShouldNotBeNil)
			})
		})

		Convey("When initialized with an unknown format", func() {
			err := Init(WithFormat(Format("xml")))

			Convey("Then it fails", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "unknown log format")
			})
		})
	})
}

func TestLoggerJSON(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithFormat(FormatJSON), WithOutput(&buf)), ShouldBeNil)
		ctx := context.Background()

		Convey("When an info line is written with fields", func() {
			Get().Info(ctx, "vote accepted",
				String("contest_id", "battle-1"),
				Int("n", 2),
				Bool("ok", true),
				Duration("took", time.Millisecond),
			)

			var line map[string]any
			So(json.Unmarshal(buf.Bytes(), &line), ShouldBeNil)

			Convey("Then fields and source are present", func() {
				So(line["msg"], ShouldEqual, "vote accepted")
				So(line["contest_id"], ShouldEqual, "battle-1")
				So(line["ok"], ShouldEqual, true)
				So(line["source"], ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When the level is raised to error", func() {
			So(SetLevelString("error"), ShouldBeNil)
			Get().Info(ctx, "hidden")

			Convey("Then info lines are filtered", func() {
				So(buf.Len(), ShouldEqual, 0)
			})
		})

		Convey("When With attaches fields", func() {
			Get().With(String("component", "recorder")).Warn(ctx, "slow store")

			Convey("Then every line carries them", func() {
				So(buf.String(), ShouldContainSubstring, `"component":"recorder"`)
			})
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("SetLevelString accepts known levels only", t, func() {
		for _, lvl := range []string{"debug", "info", "", "warn", "warning", "error", " INFO "} {
			So(SetLevelString(lvl), ShouldBeNil)
		}
		So(SetLevelString("verbose"), ShouldNotBeNil)
	})
}

func TestLoggerNamed(t *testing.T) {
	Convey("Given a named logger", t, func() {
		var buf bytes.Buffer
		So(Init(WithFormat(FormatJSON), WithOutput(&buf)), ShouldBeNil)

		Named("api").Info(context.Background(), "hello", String("k", "v"))

		Convey("Then fields are grouped under the name", func() {
			So(buf.String(), ShouldContainSubstring, `"api":{`)
		})
	})
}

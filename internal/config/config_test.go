package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/Omihmed/CalDAV2iCal/internal/config"
)

func TestLoad(t *testing.T) {
	convey.Convey("Given a missing config file", t, func() {
		path := filepath.Join(t.TempDir(), "config.yaml")

		convey.Convey("When it is loaded", func() {
			cfg, err := config.Load(path)

			convey.Convey("Then defaults are returned and written to disk", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Listen, convey.ShouldEqual, "127.0.0.1:9090")
				convey.So(cfg.Output, convey.ShouldEqual, "calendar.ics")
				convey.So(cfg.HorizonDays, convey.ShouldEqual, 365)

				info, serr := os.Stat(path)
				convey.So(serr, convey.ShouldBeNil)
				if runtime.GOOS != "windows" {
					convey.So(info.Mode().Perm(), convey.ShouldEqual, os.FileMode(0o600))
				}
			})
		})
	})

	convey.Convey("Given a partially filled config file", t, func() {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "listen: 0.0.0.0:8000\n" +
			"servers:\n" +
			"  - url: https://cal.example.com/\n" +
			"    username: alice\n" +
			"    password: secret\n"
		convey.So(os.WriteFile(path, []byte(content), 0o600), convey.ShouldBeNil)

		convey.Convey("When it is loaded", func() {
			cfg, err := config.Load(path)

			convey.Convey("Then missing values fall back to defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Listen, convey.ShouldEqual, "0.0.0.0:8000")
				convey.So(cfg.Refresh, convey.ShouldEqual, "@every 1m")
				convey.So(cfg.Workers, convey.ShouldEqual, 4)
				convey.So(cfg.Servers, convey.ShouldHaveLength, 1)
				convey.So(cfg.Servers[0].IntervalMinutes, convey.ShouldEqual, 20)
			})
		})
	})

	convey.Convey("Given an unreadable YAML file", t, func() {
		path := filepath.Join(t.TempDir(), "config.yaml")
		convey.So(os.WriteFile(path, []byte("listen: [unclosed"), 0o600), convey.ShouldBeNil)

		convey.Convey("When it is loaded", func() {
			_, err := config.Load(path)

			convey.Convey("Then the error is surfaced", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestSaveRoundTrip(t *testing.T) {
	convey.Convey("Given a config with one server", t, func() {
		cfg := config.DefaultConfig()
		cfg.Servers = []config.ServerConfig{{
			ID:              "srv-1",
			URL:             "https://cal.example.com/",
			Username:        "alice",
			Password:        "secret",
			CalendarPath:    "/calendars/alice/main/",
			IntervalMinutes: 30,
		}}
		path := filepath.Join(t.TempDir(), "config.yaml")

		convey.Convey("When it is saved and loaded back", func() {
			convey.So(config.Save(path, cfg), convey.ShouldBeNil)
			loaded, err := config.Load(path)

			convey.Convey("Then every field survives", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(loaded.Servers, convey.ShouldResemble, cfg.Servers)
				convey.So(loaded.Listen, convey.ShouldEqual, cfg.Listen)
				convey.So(loaded.Refresh, convey.ShouldEqual, cfg.Refresh)
			})

			convey.Convey("Then no temp file is left behind", func() {
				entries, derr := os.ReadDir(filepath.Dir(path))
				convey.So(derr, convey.ShouldBeNil)
				convey.So(entries, convey.ShouldHaveLength, 1)
			})
		})
	})
}

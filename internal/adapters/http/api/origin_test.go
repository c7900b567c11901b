package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestOriginResolver(t *testing.T) {
	cases := []struct {
		name    string
		trust   bool
		remote  string
		headers map[string]string
		want    string
	}{
		{"socket address", false, "1.2.3.4:5555", nil, "1.2.3.4"},
		{"ipv6 socket address", false, "[2001:db8::1]:443", nil, "2001:db8::1"},
		{"no socket address", false, "", nil, ""},
		{"headers ignored when untrusted", false, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "10.0.0.1"},
		{"first forwarded hop", true, "10.0.0.1:1", map[string]string{"X-Forwarded-For": " 1.2.3.4 , 10.0.0.2"}, "1.2.3.4"},
		{"cloudflare header", true, "10.0.0.1:1", map[string]string{"CF-Connecting-IP": "5.6.7.8"}, "5.6.7.8"},
		{"real ip header", true, "10.0.0.1:1", map[string]string{"X-Real-IP": "9.9.9.9"}, "9.9.9.9"},
		{"forwarded wins over others", true, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "1.1.1.1", "X-Real-IP": "9.9.9.9"}, "1.1.1.1"},
		{"garbage header falls through", true, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "unknown"}, "10.0.0.1"},
		{"mapped ipv4 is unmapped", false, "[::ffff:1.2.3.4]:80", nil, "1.2.3.4"},
	}

	Convey("Given an origin resolver", t, func() {
		for _, tc := range cases {
			Convey(tc.name, func() {
				req := httptest.NewRequest("POST", "/vote", nil)
				req.RemoteAddr = tc.remote
				for k, v := range tc.headers {
					req.Header.Set(k, v)
				}
				So(NewOriginResolver(tc.trust).Resolve(req), ShouldEqual, tc.want)
			})
		}
	})
}

func TestErrorKinds(t *testing.T) {
	Convey("Given a wrapped error", t, func() {
		cause := ErrBadRequest
		err := WrapKind("api.vote", ErrRateLimited, cause)

		Convey("Then both kind and cause match and the public message drops the op", func() {
			So(errors.Is(err, ErrRateLimited), ShouldBeTrue)
			So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
			So(err.Error(), ShouldStartWith, "api.vote: ")
			So(publicMessage(err), ShouldEqual, "bad request")
			So(publicMessage(NewKind("api.vote", ErrRateLimited)), ShouldEqual, "rate limited")
		})
	})
}

func TestDecodeFailures(t *testing.T) {
	Convey("Given vote bodies that cannot be read", t, func() {
		var v voteRequest

		Convey("When the body is missing", func() {
			r := httptest.NewRequest(http.MethodPost, "/vote", nil)
			err := decode(r, &v)
			So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "required")
		})

		Convey("When the body is not JSON", func() {
			r := httptest.NewRequest(http.MethodPost, "/vote", strings.NewReader("{not json"))
			err := decode(r, &v)
			So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "malformed JSON body")
		})

		Convey("When the body is larger than a vote can be", func() {
			big := `{"contestId":"` + strings.Repeat("x", maxVoteBodyBytes) + `"}`
			r := httptest.NewRequest(http.MethodPost, "/vote", strings.NewReader(big))
			So(errors.Is(decode(r, &v), ErrBadRequest), ShouldBeTrue)
		})

		Convey("When the body is a valid ballot", func() {
			r := httptest.NewRequest(http.MethodPost, "/vote", strings.NewReader(`{"contestId":"battle-1","choice":"A"}`))
			So(decode(r, &v), ShouldBeNil)
			So(v.ContestID, ShouldEqual, "battle-1")
		})
	})
}


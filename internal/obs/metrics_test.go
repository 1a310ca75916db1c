package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                            "/",
		"/metrics":                    "/metrics",
		"/spaces":                     "/spaces",
		"/spaces/42":                  "/spaces/:id",
		"/spaces/42/messages":         "/spaces/:id/messages",
		"/spaces/42/messages/7":       "/spaces/:id/messages/:id",
		"/spaces/42/members":          "/spaces/:id/members",
		"/spaces/42/messages?since=x": "/spaces/:id/messages",
		"/sessions":                   "/sessions",
		"/logs":                       "/logs",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

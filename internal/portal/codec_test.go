package portal

import "testing"

func TestEncodeComponentMatchesBrowserEncoding(t *testing.T) {
	cases := map[string]string{
		"f20200001":       "f20200001",
		"a b":             "a%20b",
		"p@ss/word":       "p%40ss%2Fword",
		"!'()*-_.~":       "!'()*-_.~",
		"a+b=c&d":         "a%2Bb%3Dc%26d",
		"100%":            "100%25",
		"ünïcode":         "%C3%BCn%C3%AFcode",
		"semi;colon:hash": "semi%3Bcolon%3Ahash",
	}
	for in, want := range cases {
		if got := EncodeComponent(in); got != want {
			t.Fatalf("EncodeComponent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestComponentRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		"with space",
		"reserved:/?#[]@!$&'()*+,;=",
		"percent%20literal",
		"plus+sign",
		"tabs\tand\nnewlines",
		"emoji 🚀",
	}
	for _, in := range inputs {
		out, err := DecodeComponent(EncodeComponent(in))
		if err != nil {
			t.Fatalf("decode %q: %v", in, err)
		}
		if out != in {
			t.Fatalf("round trip mismatch: %q -> %q", in, out)
		}
	}
}

func TestCredentialsEncodeDecode(t *testing.T) {
	creds := Credentials{Username: "f2020 0001", Password: "p&ss=w+rd%"}
	decoded, err := DecodeCredentials(creds.Encode())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded != creds {
		t.Fatalf("expected %+v, got %+v", creds, decoded)
	}
	if _, err := DecodeCredentials(Credentials{Username: "%zz", Password: "x"}); err == nil {
		t.Fatalf("expected malformed escape to fail")
	}
}

func TestCredentialsComplete(t *testing.T) {
	cases := []struct {
		creds Credentials
		want  bool
	}{
		{Credentials{}, false},
		{Credentials{Username: "u"}, false},
		{Credentials{Password: "p"}, false},
		{Credentials{Username: "  ", Password: "p"}, false},
		{Credentials{Username: "u", Password: "p"}, true},
	}
	for _, tc := range cases {
		if got := tc.creds.Complete(); got != tc.want {
			t.Fatalf("%+v.Complete() = %v, want %v", tc.creds, got, tc.want)
		}
	}
}

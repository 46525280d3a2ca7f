package portal

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func statusPage(cells [5][2]string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="content1"><table><tr><td class="tabletext">999 <span id="LanguageTB"></span></td></tr></table></div>`)
	b.WriteString(`<div id="content3"><table>`)
	b.WriteString(`<tr><td class="tabletext">Account</td><td class="tabletext">f20200001</td></tr>`)
	for _, c := range cells {
		fmt.Fprintf(&b, `<tr><td class="tablehead">label</td><td class="tabletext">%s<span id="%s"></span></td></tr>`, c[0], c[1])
	}
	b.WriteString(`</table></div></body></html>`)
	return b.String()
}

func TestParseAccountStatusReadsLastFiveCellsInOrder(t *testing.T) {
	page := statusPage([5][2]string{
		{"1024 ", "LanguageGB"},
		{" 12.5", "LanguageMB"},
		{"300", "LanguageMB"},
		{"  524.25  ", "LanguageGB"},
		{"499.75", "LanguageGB"},
	})

	traffic, units, err := ParseAccountStatus(strings.NewReader(page))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Traffic{Total: 1024, Last: 12.5, Current: 300, Used: 524.25, Remaining: 499.75}
	if traffic != want {
		t.Fatalf("traffic mismatch: got %+v want %+v", traffic, want)
	}
	wantUnits := TrafficUnits{Total: "GB", Last: "MB", Current: "MB", Used: "GB", Remaining: "GB"}
	if units != wantUnits {
		t.Fatalf("units mismatch: got %+v want %+v", units, wantUnits)
	}
}

func TestParseAccountStatusPositionalAcrossFixtures(t *testing.T) {
	fixtures := [][5]float64{
		{0, 0, 0, 0, 0},
		{1, 2, 3, 4, 5},
		{5120, 0.01, 17.3, 4000, 1120},
		{100000, 99999.99, 1, 0.5, 99999.5},
	}
	for i, values := range fixtures {
		t.Run(fmt.Sprintf("fixture-%d", i), func(t *testing.T) {
			var cells [5][2]string
			for j, v := range values {
				cells[j] = [2]string{fmt.Sprintf("%v", v), "LanguageMB"}
			}
			traffic, _, err := ParseAccountStatus(strings.NewReader(statusPage(cells)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := [5]float64{traffic.Total, traffic.Last, traffic.Current, traffic.Used, traffic.Remaining}
			if got != values {
				t.Fatalf("expected %v, got %v", values, got)
			}
		})
	}
}

func TestParseAccountStatusIsIdempotent(t *testing.T) {
	page := statusPage([5][2]string{
		{"2048", "Language.GB"},
		{"1", "Language.MB"},
		{"2", "Language.MB"},
		{"3", "Language.GB"},
		{"4", "Language.GB"},
	})
	t1, u1, err1 := ParseAccountStatus(strings.NewReader(page))
	t2, u2, err2 := ParseAccountStatus(strings.NewReader(page))
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v %v", err1, err2)
	}
	if t1 != t2 || u1 != u2 {
		t.Fatalf("expected identical results, got %+v/%+v and %+v/%+v", t1, u1, t2, u2)
	}
	if u1.Total != "GB" {
		t.Fatalf("expected dotted locale prefix to be stripped, got %q", u1.Total)
	}
}

func TestParseAccountStatusRejectsMissingStructure(t *testing.T) {
	cases := map[string]string{
		"no container":    `<html><body><table><tr><td class="tabletext">1</td></tr></table></body></html>`,
		"too few cells":   `<html><body><div id="content3"><table><tr><td class="tabletext">1<span id="LanguageGB"></span></td></tr></table></div></body></html>`,
		"non numeric":     statusPage([5][2]string{{"lots", "LanguageGB"}, {"1", "LanguageGB"}, {"1", "LanguageGB"}, {"1", "LanguageGB"}, {"1", "LanguageGB"}}),
		"negative amount": statusPage([5][2]string{{"-1", "LanguageGB"}, {"1", "LanguageGB"}, {"1", "LanguageGB"}, {"1", "LanguageGB"}, {"1", "LanguageGB"}}),
	}
	for name, page := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := ParseAccountStatus(strings.NewReader(page)); err == nil {
				t.Fatalf("expected parse error")
			}
		})
	}
}

func TestParseAccountStatusRequiresUnitElement(t *testing.T) {
	page := `<html><body><div id="content3"><table><tr>` +
		strings.Repeat(`<td class="tabletext">1</td>`, 5) +
		`</tr></table></div></body></html>`
	if _, _, err := ParseAccountStatus(strings.NewReader(page)); err == nil {
		t.Fatalf("expected error for cells without unit element")
	}
}

func TestExtractSessionCookieTakesFirstSegment(t *testing.T) {
	h := http.Header{}
	h.Add("Set-Cookie", "JSESSIONID=abc123; Path=/")
	h.Add("Set-Cookie", "other=1; Path=/")
	if got := ExtractSessionCookie(h); got != "JSESSIONID=abc123" {
		t.Fatalf("expected JSESSIONID=abc123, got %q", got)
	}
	if got := ExtractSessionCookie(http.Header{}); got != "" {
		t.Fatalf("expected empty cookie, got %q", got)
	}
}

func TestExtractCSRFToken(t *testing.T) {
	token, err := ExtractCSRFToken("<script>\nvar k3n = 'tok-9f2e';\nvar other = 1;\n</script>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "tok-9f2e" {
		t.Fatalf("expected tok-9f2e, got %q", token)
	}
	if _, err := ExtractCSRFToken("<html>signed out</html>"); err == nil {
		t.Fatalf("expected error when assignment is absent")
	}
}

func TestUnitFromID(t *testing.T) {
	cases := map[string]string{
		"LanguageGB":  "GB",
		"Language.MB": "MB",
		"Language_KB": "KB",
		"GB":          "GB",
		"":            "",
	}
	for in, want := range cases {
		if got := unitFromID(in); got != want {
			t.Fatalf("unitFromID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKindOfMatchesSentinels(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError(KindParse, "account status", errors.New("x")))
	if KindOf(err) != KindParse {
		t.Fatalf("expected parse kind, got %v", KindOf(err))
	}
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected errors.Is to match ErrParse")
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("did not expect invalid credentials match")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatalf("expected unknown kind for foreign error")
	}
}

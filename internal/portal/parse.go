package portal

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	statusContainerSelector = "#content3"
	statusCellSelector      = "td.tabletext"
	statusCellCount         = 5
	unitIDPrefix            = "Language"
)

var csrfTokenPattern = regexp.MustCompile(`k3n = '(.+)'`)

// ExtractSessionCookie returns the first ';'-delimited segment of the first
// Set-Cookie header, or "" when the response sets no cookie.
func ExtractSessionCookie(h http.Header) string {
	values := h.Values("Set-Cookie")
	if len(values) == 0 {
		return ""
	}
	segment, _, _ := strings.Cut(values[0], ";")
	return strings.TrimSpace(segment)
}

// ExtractCSRFToken finds the token the account page assigns to k3n.
func ExtractCSRFToken(body string) (string, error) {
	m := csrfTokenPattern.FindStringSubmatch(body)
	if len(m) < 2 || strings.TrimSpace(m[1]) == "" {
		return "", errors.New("csrf token assignment not found")
	}
	return m[1], nil
}

// ParseAccountStatus reads the account-status page and returns the last five
// tabletext cells of #content3 in total/last/current/used/remaining order.
func ParseAccountStatus(r io.Reader) (Traffic, TrafficUnits, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Traffic{}, TrafficUnits{}, fmt.Errorf("parse status html: %w", err)
	}
	container := doc.Find(statusContainerSelector).First()
	if container.Length() == 0 {
		return Traffic{}, TrafficUnits{}, fmt.Errorf("%s not found", statusContainerSelector)
	}
	cells := container.Find(statusCellSelector)
	n := cells.Length()
	if n < statusCellCount {
		return Traffic{}, TrafficUnits{}, fmt.Errorf("expected at least %d %s cells, found %d", statusCellCount, statusCellSelector, n)
	}

	amounts := make([]float64, 0, statusCellCount)
	units := make([]string, 0, statusCellCount)
	var cellErr error
	cells.Slice(n-statusCellCount, n).EachWithBreak(func(i int, cell *goquery.Selection) bool {
		amount, unit, err := parseStatusCell(cell.Get(0))
		if err != nil {
			cellErr = fmt.Errorf("cell %d: %w", i, err)
			return false
		}
		amounts = append(amounts, amount)
		units = append(units, unit)
		return true
	})
	if cellErr != nil {
		return Traffic{}, TrafficUnits{}, cellErr
	}

	traffic := Traffic{
		Total:     amounts[0],
		Last:      amounts[1],
		Current:   amounts[2],
		Used:      amounts[3],
		Remaining: amounts[4],
	}
	trafficUnits := TrafficUnits{
		Total:     units[0],
		Last:      units[1],
		Current:   units[2],
		Used:      units[3],
		Remaining: units[4],
	}
	return traffic, trafficUnits, nil
}

func parseStatusCell(cell *html.Node) (float64, string, error) {
	var text *html.Node
	var child *html.Node
	for c := cell.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if text == nil {
				text = c
			}
		case html.ElementNode:
			if child == nil {
				child = c
			}
		}
	}
	if text == nil {
		return 0, "", errors.New("missing amount text")
	}
	raw := strings.ReplaceAll(strings.TrimSpace(text.Data), ",", "")
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, "", fmt.Errorf("amount %q: %w", strings.TrimSpace(text.Data), err)
	}
	if amount < 0 {
		return 0, "", fmt.Errorf("negative amount %v", amount)
	}
	if child == nil {
		return 0, "", errors.New("missing unit element")
	}
	return amount, unitFromID(attr(child, "id")), nil
}

func unitFromID(id string) string {
	unit := strings.TrimPrefix(strings.TrimSpace(id), unitIDPrefix)
	if unit != "" && strings.ContainsRune(".-_", rune(unit[0])) {
		unit = unit[1:]
	}
	return unit
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

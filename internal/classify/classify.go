// Package classify turns raw upstream responses into gateway outcomes.
//
// The F5 access layer in front of BANCIWS never signals session expiry
// explicitly: it answers HTTP 200 with an HTML landing page where the backend
// would have sent XML. Classification is therefore the only way to tell a
// real backend answer from a silent authentication failure.
package classify

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"anaf-gateway-go/internal/model"
	"anaf-gateway-go/internal/transport"
)

// Markers that identify an F5 interception page in the response body.
var authFailureMarkers = []string{
	"<html",                              // HTML root tag where XML was expected
	"/my.policy",                         // F5 APM login path referenced in redirects
	"certificatul nu a putut fi validat", // certificate-rejection phrase on the ANAF page
}

// Classify maps one upstream call to an Outcome. err is the transport-level
// error, if any; res is ignored when err is non-nil.
//
// The rule order is load-bearing: a backend error envelope arrives with a 4xx
// status and well-formed XML, and must be recognized before HTML sniffing so
// it is never mistaken for an authentication failure.
func Classify(res *transport.Result, err error) model.Outcome {
	if err != nil {
		return model.Outcome{
			Kind:   model.TransientError,
			Reason: "transport failure",
			Err:    err,
		}
	}

	status := res.StatusCode
	contentType := strings.ToLower(res.ContentType())
	body := res.Body

	if status >= 400 && status < 500 && wellFormedXML(body) {
		return model.Outcome{
			Kind:       model.Success,
			Body:       body,
			StatusCode: status,
			Reason:     "backend error envelope",
		}
	}

	if marker, ok := authFailureMarker(contentType, body); ok {
		return model.Outcome{
			Kind:       model.AuthFailure,
			StatusCode: status,
			Reason:     fmt.Sprintf("auth interception: %s", marker),
		}
	}

	if isXMLContentType(contentType) && wellFormedXML(body) {
		return model.Outcome{
			Kind:       model.Success,
			Body:       body,
			StatusCode: status,
			Reason:     "xml response",
		}
	}

	return model.Outcome{
		Kind:       model.TransientError,
		StatusCode: status,
		Reason:     fmt.Sprintf("unexpected response: status %d, content type %q", status, contentType),
		Err:        fmt.Errorf("unexpected upstream response: status %d, content type %q", status, contentType),
	}
}

// authFailureMarker reports whether the response looks like an F5 interception
// page and which marker matched.
func authFailureMarker(contentType string, body []byte) (string, bool) {
	if strings.Contains(contentType, "text/html") {
		return "html content type", true
	}
	lower := bytes.ToLower(body)
	for _, m := range authFailureMarkers {
		if bytes.Contains(lower, []byte(m)) {
			return m, true
		}
	}
	return "", false
}

func isXMLContentType(contentType string) bool {
	return strings.Contains(contentType, "/xml") || strings.Contains(contentType, "+xml")
}

// wellFormedXML reports whether body parses as a complete XML document with at
// least one element.
func wellFormedXML(body []byte) bool {
	dec := xml.NewDecoder(bytes.NewReader(body))
	seenElement := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return seenElement
		}
		if err != nil {
			return false
		}
		if _, ok := tok.(xml.StartElement); ok {
			seenElement = true
		}
	}
}

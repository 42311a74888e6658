// Package anafxml builds the BANCIWS request envelopes.
//
// Envelope shapes and namespaces follow the ANAF documentation and XSDs
// (https://static.anaf.ro/static/IFN/instructiuni_ifn.html). Values are
// marshaled through encoding/xml so attribute content is always escaped.
package anafxml

import (
	"encoding/xml"
	"fmt"
)

// ContentType is the media type of every BANCIWS request and success response.
const ContentType = "application/xml"

// BANCIWS operation endpoints, relative to the service base URL.
const (
	EndpointListaMesaje = "listaMesaje"
	EndpointStareMesaj  = "stareMesaj"
	EndpointDescarcare  = "descarcare"
	EndpointUploadMesaj = "uploadMesaj"
)

// DefaultZile is the message-listing window used when the caller does not
// supply one, and by the session handshake's dummy request.
const DefaultZile = "1/24"

const xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"

type listaMesajeHeader struct {
	XMLName xml.Name `xml:"header"`
	Xmlns   string   `xml:"xmlns,attr"`
	XSI     string   `xml:"xmlns:xsi,attr"`
	Lista   struct {
		Zile string `xml:"Zile,attr"`
	} `xml:"listaMesaje"`
}

type stareMesajHeader struct {
	XMLName xml.Name `xml:"header"`
	Xmlns   string   `xml:"xmlns,attr"`
	XSI     string   `xml:"xmlns:xsi,attr"`
	Stare   struct {
		IndexIncarcare string `xml:"index_incarcare,attr"`
	} `xml:"listaMesaje"`
}

type descarcareHeader struct {
	XMLName  xml.Name `xml:"header"`
	Xmlns    string   `xml:"xmlns,attr"`
	XSI      string   `xml:"xmlns:xsi,attr"`
	IDPortal string   `xml:"id_portal,attr"`
}

type uploadHeader struct {
	XMLName xml.Name `xml:"header"`
	Xmlns   string   `xml:"xmlns,attr"`
	XSI     string   `xml:"xmlns:xsi,attr"`
	Upload  struct {
		Fisier string `xml:"fisier,attr"`
	} `xml:"upload"`
}

// ListaMesaje builds the message-listing request for the given window
// (e.g. "1/24" for the last day, hourly granularity).
func ListaMesaje(zile string) ([]byte, error) {
	h := listaMesajeHeader{Xmlns: "mfp:anaf:dgti:banci:reqListaMesaje:v1", XSI: xsiNamespace}
	h.Lista.Zile = zile
	return marshal(h)
}

// StareMesaj builds the message-status request for an upload index.
func StareMesaj(indexIncarcare string) ([]byte, error) {
	h := stareMesajHeader{Xmlns: "mfp:anaf:dgti:banci:reqStareMesaj:v1", XSI: xsiNamespace}
	h.Stare.IndexIncarcare = indexIncarcare
	return marshal(h)
}

// DescarcareMesaj builds the message-download request for a portal id.
func DescarcareMesaj(idPortal string) ([]byte, error) {
	h := descarcareHeader{Xmlns: "mfp:anaf:dgti:banci:reqDescarcareMesaj:v1", XSI: xsiNamespace, IDPortal: idPortal}
	return marshal(h)
}

// UploadMesaj builds the file-upload request. fisierB64 is the base64-encoded
// file content.
func UploadMesaj(fisierB64 string) ([]byte, error) {
	h := uploadHeader{Xmlns: "mfp:anaf:dgti:banci:reqUploadFisier:v1", XSI: xsiNamespace}
	h.Upload.Fisier = fisierB64
	return marshal(h)
}

// HandshakePayload returns the dummy-but-valid listaMesaje envelope used to
// trigger the F5 authentication flow. The response payload is irrelevant;
// only the cookie issuance matters.
func HandshakePayload() []byte {
	p, err := ListaMesaje(DefaultZile)
	if err != nil {
		// Marshaling a fixed struct cannot fail.
		panic(fmt.Sprintf("anafxml: handshake payload: %v", err))
	}
	return p
}

func marshal(v any) ([]byte, error) {
	body, err := xml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request envelope: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

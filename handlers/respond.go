package handlers

import (
	"encoding/json"
	"encoding/xml"
	"strings"

	"github.com/juju/errors"
	"github.com/labstack/echo/v4"
)

// Ack acknowledges a request which has no other result.
type Ack struct {
	XMLName xml.Name `json:"-" xml:"Acknowledgement"`
	Status  string   `json:"status" xml:"status"`
	Message string   `json:"message,omitempty" xml:"message,omitempty"`
}

func success(msg string) Ack { return Ack{Status: "Success", Message: msg} }

func failure(msg string) Ack { return Ack{Status: "Failure", Message: msg} }

func isXML(mime string) bool {
	return strings.Contains(mime, echo.MIMEApplicationXML) || strings.Contains(mime, echo.MIMETextXML)
}

func wantsXML(c echo.Context) bool {
	return isXML(c.Request().Header.Get(echo.HeaderAccept))
}

// respond writes v as XML when the client accepts XML and as JSON
// otherwise.
func respond(c echo.Context, code int, v interface{}) error {
	if wantsXML(c) {
		return c.XML(code, v)
	}
	return c.JSON(code, v)
}

// respondList is respond for slices, which need a root element in XML.
func respondList(c echo.Context, code int, items interface{}, asXML interface{}) error {
	if wantsXML(c) && asXML != nil {
		return c.XML(code, asXML)
	}
	return c.JSON(code, items)
}

// decodeBody reads the request body as XML or JSON, following the
// request content type.
func decodeBody(c echo.Context, v interface{}) error {
	req := c.Request()
	if req.Body == nil {
		return errors.NotValidf("empty request body")
	}
	var err error
	if isXML(req.Header.Get(echo.HeaderContentType)) {
		err = xml.NewDecoder(req.Body).Decode(v)
	} else {
		err = json.NewDecoder(req.Body).Decode(v)
	}
	if err != nil {
		return errors.NewNotValid(err, "request body")
	}
	return nil
}

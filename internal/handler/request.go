package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	apperrors "github.com/openclaw/session-gateway-go/internal/errors"
)

const maxMultipartMemory = 1 << 20

// formFields reads the named fields from a JSON, urlencoded or multipart
// body. Query parameters fill in fields the body leaves empty.
func formFields(r *http.Request, names ...string) (map[string]string, error) {
	fields := make(map[string]string, len(names))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var body map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return nil, apperrors.InvalidInput("body", "malformed JSON")
		}
		for _, name := range names {
			switch v := body[name].(type) {
			case string:
				fields[name] = v
			case json.Number:
				fields[name] = v.String()
			}
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, apperrors.InvalidInput("body", "malformed multipart form")
		}
	default:
		if err := r.ParseForm(); err != nil {
			return nil, apperrors.InvalidInput("body", "malformed form")
		}
	}

	for _, name := range names {
		if fields[name] == "" {
			fields[name] = r.FormValue(name)
		}
		fields[name] = strings.TrimSpace(fields[name])
	}
	return fields, nil
}

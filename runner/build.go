package runner

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/kbukum/restkit/errors"
	"github.com/kbukum/restkit/rest"
	"github.com/kbukum/restkit/transport"
)

const contentTypeJSON = "application/json"

// buildRequest turns a request descriptor into a transport request. Bodies of
// POST, PUT and PATCH are sent as JSON, or as multipart when attachments are
// present; other methods carry body parameters in the query string.
func buildRequest(req *rest.Request) (*transport.Request, error) {
	u, err := url.Parse(req.URL())
	if err != nil || u.Host == "" {
		return nil, errors.New(errors.ErrCodeInvalidQuery, "invalid request URL").
			WithDetail("url", req.URL()).WithCause(err)
	}

	q := u.Query()
	for k, v := range req.Query() {
		q.Set(k, v)
	}

	headers := req.Headers()
	if headers == nil {
		headers = make(map[string]string)
	}
	if _, ok := headers["Accept"]; !ok {
		headers["Accept"] = contentTypeJSON
	}

	var payload []byte
	body := req.Body()
	attachments := req.Attachments()
	switch {
	case len(attachments) > 0 && req.Method().HasBody():
		fields := make(map[string]string, len(body))
		for k, v := range body {
			fields[k] = formValue(v)
		}
		files := make([]transport.FileField, 0, len(attachments))
		for _, a := range attachments {
			files = append(files, transport.FileField{
				FieldName:   a.Name,
				FileName:    a.FileName,
				ContentType: a.ContentType,
				Data:        a.Data,
			})
		}
		var contentType string
		payload, contentType, err = transport.EncodeMultipart(fields, files)
		if err != nil {
			return nil, errors.InvalidPayload("multipart encoding failed").WithCause(err)
		}
		headers["Content-Type"] = contentType
	case body != nil && req.Method().HasBody():
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, errors.InvalidPayload("body is not JSON-encodable").WithCause(err)
		}
		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = contentTypeJSON
		}
	case body != nil:
		for k, v := range body {
			q.Set(k, formValue(v))
		}
	}

	u.RawQuery = q.Encode()
	return &transport.Request{
		Method:  string(req.Method()),
		URL:     u.String(),
		Headers: headers,
		Body:    payload,
	}, nil
}

func formValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}

package lanserve

import (
	"net/url"
	"os"

	"github.com/badu/lanserve/formdata"
)

// FormValues returns the parsed application/x-www-form-urlencoded
// arguments for a Request built with NewURLEncodedFormRequest, or nil
// otherwise.
func (r *Request) FormValues() url.Values {
	if w, ok := r.body.(*formdata.URLEncodedWriter); ok {
		return w.Values()
	}
	return nil
}

// MultipartForm returns the parsed multipart/form-data for a Request
// built with NewMultipartFormRequest, or nil otherwise. Callers that
// want the temp files cleaned up early may call form.RemoveAll(); it is
// otherwise done when the Request is released by the connection.
func (r *Request) MultipartForm() *formdata.Form {
	if w, ok := r.body.(*formdata.MultipartWriter); ok {
		return w.Form()
	}
	return nil
}

// releaseBody removes any temp-backed state the request's body writer
// allocated (spec.md §5 "Resource scoping": "each Request temp file is
// ... deleted when the Request is destroyed").
func (r *Request) releaseBody() {
	switch w := r.body.(type) {
	case *tempFileBodyWriter:
		if w.path != "" {
			os.Remove(w.path)
		}
	case *formdata.MultipartWriter:
		if form := w.Form(); form != nil {
			form.RemoveAll()
		}
	}
}

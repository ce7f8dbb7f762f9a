package httperr

import (
	stderrors "errors"
	"net/http"
	"student_market/internal/lib/errors"

	"github.com/go-chi/render"
)

// Render maps a domain error kind onto an HTTP status and writes the
// standard error body. Unknown errors become a 500 with a generic reason so
// internal details never leak to clients.
func Render(w http.ResponseWriter, r *http.Request, err error) {
	var derr *errors.Error
	if !stderrors.As(err, &derr) {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errors.NewHttpError("internal error"))
		return
	}

	switch derr.Kind {
	case errors.KindValidation, errors.KindPrecondition:
		render.Status(r, http.StatusBadRequest)
	case errors.KindUnauthorized:
		render.Status(r, http.StatusUnauthorized)
	case errors.KindForbidden:
		render.Status(r, http.StatusForbidden)
	case errors.KindNotFound:
		render.Status(r, http.StatusNotFound)
	case errors.KindConflict:
		render.Status(r, http.StatusConflict)
	default:
		render.Status(r, http.StatusBadRequest)
	}

	render.JSON(w, r, errors.NewHttpError(derr.Reason))
}

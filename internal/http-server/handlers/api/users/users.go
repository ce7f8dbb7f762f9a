package users

import (
	"log/slog"
	"net/http"
	"student_market/internal/http-server/handlers/api/httperr"
	"student_market/internal/lib/errors"
	"student_market/internal/models/user"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type UserSaver interface {
	SaveUser(username, role string) (user.User, error)
}

func NewRegisterUser(log *slog.Logger, userSaver UserSaver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.users.NewRegisterUser"
		log := log.With(slog.String("op", op))

		var req user.RegisterRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", slog.String("error", err.Error()))
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("failed to decode request body"))
			return
		}

		if err := validate.Struct(req); err != nil {
			log.Error("invalid register request", slog.String("error", err.Error()))
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError(err.Error()))
			return
		}

		usr, err := userSaver.SaveUser(req.Username, req.Role)
		if err != nil {
			log.Error("failed to save user", slog.String("error", err.Error()))
			httperr.Render(w, r, errors.Wrap(errors.KindConflict, "username is already taken", err))
			return
		}

		render.JSON(w, r, usr)
	}
}

package notifications

import (
	"context"
	serrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"student_market/internal/http-server/handlers/api/httperr"
	"student_market/internal/lib/errors"
	"student_market/internal/models/notification"
	"student_market/internal/storage/postgres"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type MyNotificationsReader interface {
	ReadMyNotifications(ctx context.Context, username string, limit, offset int) ([]notification.Notification, error)
}

type NotificationMarker interface {
	MarkNotificationRead(ctx context.Context, notificationId, username string) (notification.Notification, error)
}

func NewGetMyNotifications(log *slog.Logger, reader MyNotificationsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.notifications.NewGetMyNotifications"
		log := log.With(slog.String("op", op))

		username := r.URL.Query().Get("username")
		if username == "" {
			render.Status(r, 401)
			render.JSON(w, r, errors.NewHttpError("The Username is empty"))
			return
		}

		limit, offset := 20, 0
		var err error
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil {
				render.Status(r, 400)
				render.JSON(w, r, errors.NewHttpError("Incorrect limit value"))
				return
			}
		}
		if raw := r.URL.Query().Get("offset"); raw != "" {
			offset, err = strconv.Atoi(raw)
			if err != nil {
				render.Status(r, 400)
				render.JSON(w, r, errors.NewHttpError("Incorrect offset value"))
				return
			}
		}

		resp, err := reader.ReadMyNotifications(r.Context(), username, limit, offset)
		if err != nil {
			log.Error("failed to read notifications", slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, resp)
	}
}

func NewMarkRead(log *slog.Logger, marker NotificationMarker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.notifications.NewMarkRead"
		log := log.With(slog.String("op", op))

		username := r.URL.Query().Get("username")
		if username == "" {
			render.Status(r, 401)
			render.JSON(w, r, errors.NewHttpError("The Username is empty"))
			return
		}

		notificationId := chi.URLParam(r, "notificationId")
		if notificationId == "" {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The notification id is invalid"))
			return
		}

		resp, err := marker.MarkNotificationRead(r.Context(), notificationId, username)
		if err != nil {
			if serrors.Is(err, postgres.ErrNotFound) {
				render.Status(r, 404)
				render.JSON(w, r, errors.NewHttpError("notification not found"))
				return
			}
			log.Error("failed to mark notification", slog.String("notificationId", notificationId), slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, resp)
	}
}

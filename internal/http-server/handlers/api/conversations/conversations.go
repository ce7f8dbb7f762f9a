package conversations

import (
	"context"
	serrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"student_market/internal/http-server/handlers/api/httperr"
	"student_market/internal/lib/errors"
	"student_market/internal/models/conversation"
	"student_market/internal/storage/postgres"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type ConversationReader interface {
	GetConversationByApplication(ctx context.Context, applicationId string) (conversation.Conversation, error)
	ReadMessages(ctx context.Context, conversationId string, limit, offset int) ([]conversation.Message, error)
}

type MessagePoster interface {
	GetConversationByApplication(ctx context.Context, applicationId string) (conversation.Conversation, error)
	AppendMessage(ctx context.Context, msg conversation.Message) (conversation.Message, error)
}

type conversationResponse struct {
	conversation.Conversation
	Messages []conversation.Message `json:"messages"`
}

func NewGetConversation(log *slog.Logger, reader ConversationReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.conversations.NewGetConversation"
		log := log.With(slog.String("op", op))

		username, ok := requireUsername(w, r)
		if !ok {
			return
		}

		conv, ok := loadConversation(w, r, log, username, reader.GetConversationByApplication)
		if !ok {
			return
		}

		limit, offset := 50, 0
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

		messages, err := reader.ReadMessages(r.Context(), conv.Id, limit, offset)
		if err != nil {
			log.Error("failed to read messages", slog.String("conversationId", conv.Id), slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, conversationResponse{Conversation: conv, Messages: messages})
	}
}

func NewPostMessage(log *slog.Logger, poster MessagePoster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.conversations.NewPostMessage"
		log := log.With(slog.String("op", op))

		username, ok := requireUsername(w, r)
		if !ok {
			return
		}

		conv, ok := loadConversation(w, r, log, username, poster.GetConversationByApplication)
		if !ok {
			return
		}

		var req conversation.PostMessageRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("failed to decode request body"))
			return
		}
		if err := validate.Struct(req); err != nil {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError(err.Error()))
			return
		}

		msg, err := poster.AppendMessage(r.Context(), conversation.Message{
			ConversationId: conv.Id,
			SenderUsername: username,
			Body:           req.Body,
		})
		if err != nil {
			log.Error("failed to append message", slog.String("conversationId", conv.Id), slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, msg)
	}
}

func loadConversation(w http.ResponseWriter, r *http.Request, log *slog.Logger, username string, get func(ctx context.Context, applicationId string) (conversation.Conversation, error)) (conversation.Conversation, bool) {
	applicationId := chi.URLParam(r, "applicationId")
	if applicationId == "" {
		render.Status(r, 400)
		render.JSON(w, r, errors.NewHttpError("The application id is invalid"))
		return conversation.Conversation{}, false
	}

	conv, err := get(r.Context(), applicationId)
	if err != nil {
		if serrors.Is(err, postgres.ErrNotFound) {
			render.Status(r, 404)
			render.JSON(w, r, errors.NewHttpError("conversation not found"))
			return conversation.Conversation{}, false
		}
		log.Error("failed to read conversation", slog.String("applicationId", applicationId), slog.String("error", err.Error()))
		httperr.Render(w, r, err)
		return conversation.Conversation{}, false
	}

	if conv.StudentUsername != username && conv.CompanyUsername != username {
		render.Status(r, 403)
		render.JSON(w, r, errors.NewHttpError("caller is not a party to this conversation"))
		return conversation.Conversation{}, false
	}

	return conv, true
}

func requireUsername(w http.ResponseWriter, r *http.Request) (string, bool) {
	username := r.URL.Query().Get("username")
	if username == "" {
		render.Status(r, 401)
		render.JSON(w, r, errors.NewHttpError("The Username is empty"))
		return "", false
	}
	return username, true
}

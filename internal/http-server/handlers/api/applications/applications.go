package applications

import (
	"context"
	serrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"student_market/internal/http-server/handlers/api/httperr"
	"student_market/internal/lib/errors"
	"student_market/internal/models/application"
	"student_market/internal/models/offer"
	"student_market/internal/models/user"
	"student_market/internal/storage/postgres"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

type Applier interface {
	Apply(ctx context.Context, caller, offerId string, proposedRate decimal.NullDecimal, message string) (application.Application, error)
}

type ProposalAccepter interface {
	AcceptProposal(ctx context.Context, caller, applicationId string) (application.Application, error)
}

type Counterer interface {
	CounterOffer(ctx context.Context, caller, applicationId string, counterRate decimal.Decimal) (application.Application, error)
}

type CounterAccepter interface {
	AcceptCounter(ctx context.Context, caller, applicationId string) (application.Application, error)
}

type RateProposer interface {
	ProposeNewRate(ctx context.Context, caller, applicationId string, proposedRate decimal.Decimal) (application.Application, error)
}

type Rejecter interface {
	Reject(ctx context.Context, caller, applicationId string) (application.Application, error)
}

type Withdrawer interface {
	Withdraw(ctx context.Context, caller, applicationId string) (application.Application, error)
}

type Canceller interface {
	Cancel(ctx context.Context, caller, applicationId, reason string) (application.Application, error)
}

type Getter interface {
	Get(ctx context.Context, caller, applicationId string) (application.Application, error)
}

type MyApplicationsReader interface {
	FetchUser(username string) (user.User, error)
	ReadMyApplications(ctx context.Context, studentUsername string, limit, offset int) ([]application.Application, error)
}

type OfferApplicationsReader interface {
	FetchUser(username string) (user.User, error)
	GetOffer(offerId string) (offer.Offer, error)
	ReadOfferApplications(ctx context.Context, offerId string, limit, offset int) ([]application.Application, error)
}

func NewPostApplication(log *slog.Logger, applier Applier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.applications.NewPostApplication"
		log := log.With(slog.String("op", op))

		username, ok := requireUsername(w, r)
		if !ok {
			return
		}

		var req application.ApplyRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", slog.String("error", err.Error()))
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("failed to decode request body"))
			return
		}
		if err := validate.Struct(req); err != nil {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError(err.Error()))
			return
		}

		var proposedRate decimal.NullDecimal
		if req.ProposedRate != "" {
			d, err := decimal.NewFromString(req.ProposedRate)
			if err != nil {
				render.Status(r, 400)
				render.JSON(w, r, errors.NewHttpError("proposedRate must be a number"))
				return
			}
			proposedRate = decimal.NullDecimal{Decimal: d, Valid: true}
		}

		resp, err := applier.Apply(r.Context(), username, req.OfferId, proposedRate, req.Message)
		if err != nil {
			log.Error("failed to apply", slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, resp)
	}
}

// NewGetApplication returns a single application to either of its parties.
func NewGetApplication(log *slog.Logger, getter Getter) http.HandlerFunc {
	return transition(log, "handlers.api.applications.NewGetApplication",
		func(ctx context.Context, caller, applicationId string) (application.Application, error) {
			return getter.Get(ctx, caller, applicationId)
		})
}

func NewAcceptProposal(log *slog.Logger, accepter ProposalAccepter) http.HandlerFunc {
	return transition(log, "handlers.api.applications.NewAcceptProposal",
		func(ctx context.Context, caller, applicationId string) (application.Application, error) {
			return accepter.AcceptProposal(ctx, caller, applicationId)
		})
}

func NewAcceptCounter(log *slog.Logger, accepter CounterAccepter) http.HandlerFunc {
	return transition(log, "handlers.api.applications.NewAcceptCounter",
		func(ctx context.Context, caller, applicationId string) (application.Application, error) {
			return accepter.AcceptCounter(ctx, caller, applicationId)
		})
}

func NewReject(log *slog.Logger, rejecter Rejecter) http.HandlerFunc {
	return transition(log, "handlers.api.applications.NewReject",
		func(ctx context.Context, caller, applicationId string) (application.Application, error) {
			return rejecter.Reject(ctx, caller, applicationId)
		})
}

func NewWithdraw(log *slog.Logger, withdrawer Withdrawer) http.HandlerFunc {
	return transition(log, "handlers.api.applications.NewWithdraw",
		func(ctx context.Context, caller, applicationId string) (application.Application, error) {
			return withdrawer.Withdraw(ctx, caller, applicationId)
		})
}

// transition factors the shared shape of body-less state-machine calls:
// caller identity, application id, one service invocation.
func transition(log *slog.Logger, op string, invoke func(ctx context.Context, caller, applicationId string) (application.Application, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := log.With(slog.String("op", op))

		username, ok := requireUsername(w, r)
		if !ok {
			return
		}
		applicationId, ok := requireApplicationId(w, r)
		if !ok {
			return
		}

		resp, err := invoke(r.Context(), username, applicationId)
		if err != nil {
			log.Error("transition failed", slog.String("applicationId", applicationId), slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, resp)
	}
}

func NewCounterOffer(log *slog.Logger, counterer Counterer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.applications.NewCounterOffer"
		log := log.With(slog.String("op", op))

		username, ok := requireUsername(w, r)
		if !ok {
			return
		}
		applicationId, ok := requireApplicationId(w, r)
		if !ok {
			return
		}

		var req application.CounterRequest
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

		rate, err := decimal.NewFromString(req.CounterRate)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("counterRate must be a number"))
			return
		}

		resp, err := counterer.CounterOffer(r.Context(), username, applicationId, rate)
		if err != nil {
			log.Error("counter failed", slog.String("applicationId", applicationId), slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, resp)
	}
}

func NewProposeRate(log *slog.Logger, proposer RateProposer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.applications.NewProposeRate"
		log := log.With(slog.String("op", op))

		username, ok := requireUsername(w, r)
		if !ok {
			return
		}
		applicationId, ok := requireApplicationId(w, r)
		if !ok {
			return
		}

		var req application.ProposeRequest
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

		rate, err := decimal.NewFromString(req.ProposedRate)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("proposedRate must be a number"))
			return
		}

		resp, err := proposer.ProposeNewRate(r.Context(), username, applicationId, rate)
		if err != nil {
			log.Error("propose failed", slog.String("applicationId", applicationId), slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, resp)
	}
}

func NewCancel(log *slog.Logger, canceller Canceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.applications.NewCancel"
		log := log.With(slog.String("op", op))

		username, ok := requireUsername(w, r)
		if !ok {
			return
		}
		applicationId, ok := requireApplicationId(w, r)
		if !ok {
			return
		}

		var req application.CancelRequest
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

		resp, err := canceller.Cancel(r.Context(), username, applicationId, req.Reason)
		if err != nil {
			log.Error("cancel failed", slog.String("applicationId", applicationId), slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, resp)
	}
}

func NewGetMyApplications(log *slog.Logger, reader MyApplicationsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.applications.NewGetMyApplications"
		log := log.With(slog.String("op", op))

		username, ok := requireUsername(w, r)
		if !ok {
			return
		}
		if _, err := reader.FetchUser(username); err != nil {
			render.Status(r, 401)
			render.JSON(w, r, errors.NewHttpError("unknown user"))
			return
		}

		limit, offset, err := parseLimitOffset(r)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError(err.Error()))
			return
		}

		resp, err := reader.ReadMyApplications(r.Context(), username, limit, offset)
		if err != nil {
			log.Error("failed to read applications", slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, resp)
	}
}

func NewGetOfferApplications(log *slog.Logger, reader OfferApplicationsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.applications.NewGetOfferApplications"
		log := log.With(slog.String("op", op))

		username, ok := requireUsername(w, r)
		if !ok {
			return
		}
		if _, err := reader.FetchUser(username); err != nil {
			render.Status(r, 401)
			render.JSON(w, r, errors.NewHttpError("unknown user"))
			return
		}

		offerId := chi.URLParam(r, "offerId")
		if offerId == "" {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The offer id is invalid"))
			return
		}

		off, err := reader.GetOffer(offerId)
		if err != nil {
			if serrors.Is(err, postgres.ErrNotFound) {
				render.Status(r, 404)
				render.JSON(w, r, errors.NewHttpError("offer not found"))
				return
			}
			log.Error("failed to read offer", slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}
		if off.CompanyUsername != username {
			render.Status(r, 403)
			render.JSON(w, r, errors.NewHttpError("offer belongs to another company"))
			return
		}

		limit, offset, err := parseLimitOffset(r)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError(err.Error()))
			return
		}

		resp, err := reader.ReadOfferApplications(r.Context(), offerId, limit, offset)
		if err != nil {
			log.Error("failed to read applications", slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, resp)
	}
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

func requireApplicationId(w http.ResponseWriter, r *http.Request) (string, bool) {
	applicationId := chi.URLParam(r, "applicationId")
	if applicationId == "" {
		render.Status(r, 400)
		render.JSON(w, r, errors.NewHttpError("The application id is invalid"))
		return "", false
	}
	return applicationId, true
}

func parseLimitOffset(r *http.Request) (int, int, error) {
	limit, offset := 5, 0
	var err error
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, serrors.New("Incorrect limit value")
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, serrors.New("Incorrect offset value")
		}
	}
	return limit, offset, nil
}

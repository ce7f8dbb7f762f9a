package offers

import (
	serrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"student_market/internal/http-server/handlers/api/httperr"
	"student_market/internal/lib/errors"
	"student_market/internal/models/offer"
	"student_market/internal/models/user"
	"student_market/internal/storage/postgres"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

type OfferSaver interface {
	FetchUser(username string) (user.User, error)
	SaveOffer(off offer.Offer) (offer.Offer, error)
}

type OfferGetter interface {
	GetOffer(offerId string) (offer.Offer, error)
}

type MyOffersReader interface {
	FetchUser(username string) (user.User, error)
	ReadMyOffers(companyUsername string, limit, offset int) ([]offer.Offer, error)
}

type OfferPublisher interface {
	FetchUser(username string) (user.User, error)
	GetOffer(offerId string) (offer.Offer, error)
	UpdateOfferStatus(offerId, fromStatus, toStatus string) (offer.Offer, error)
}

func NewPostOffer(log *slog.Logger, offerSaver OfferSaver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.offers.NewPostOffer"
		log := log.With(slog.String("op", op))

		username := r.URL.Query().Get("username")
		if username == "" {
			render.Status(r, 401)
			render.JSON(w, r, errors.NewHttpError("The Username is empty"))
			return
		}

		var req offer.CreateRequest
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

		usr, err := offerSaver.FetchUser(username)
		if err != nil {
			render.Status(r, 401)
			render.JSON(w, r, errors.NewHttpError("unknown user"))
			return
		}
		if usr.Role != user.RoleCompany {
			render.Status(r, 403)
			render.JSON(w, r, errors.NewHttpError("only companies can create offers"))
			return
		}

		rate, err := parseNullRate(req.Rate)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("rate must be a positive number"))
			return
		}
		salaryMin, err := parseNullRate(req.SalaryMin)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("salaryMin must be a positive number"))
			return
		}
		salaryMax, err := parseNullRate(req.SalaryMax)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("salaryMax must be a positive number"))
			return
		}

		resp, err := offerSaver.SaveOffer(offer.Offer{
			CompanyUsername: username,
			Name:            req.Name,
			Description:     req.Description,
			Category:        req.Category,
			Kind:            req.Kind,
			Rate:            rate,
			SalaryMin:       salaryMin,
			SalaryMax:       salaryMax,
		})
		if err != nil {
			log.Error("failed to save offer", slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, resp)
	}
}

func NewGetOffer(log *slog.Logger, offerGetter OfferGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.offers.NewGetOffer"
		log := log.With(slog.String("op", op))

		offerId := chi.URLParam(r, "offerId")
		if offerId == "" {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The offer id is invalid"))
			return
		}

		resp, err := offerGetter.GetOffer(offerId)
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

		render.JSON(w, r, resp)
	}
}

func NewGetMyOffers(log *slog.Logger, myOffersReader MyOffersReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.offers.NewGetMyOffers"
		log := log.With(slog.String("op", op))

		username := r.URL.Query().Get("username")
		if username == "" {
			render.Status(r, 401)
			render.JSON(w, r, errors.NewHttpError("The Username is empty"))
			return
		}

		if _, err := myOffersReader.FetchUser(username); err != nil {
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

		resp, err := myOffersReader.ReadMyOffers(username, limit, offset)
		if err != nil {
			log.Error("failed to read offers", slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, resp)
	}
}

func NewPublishOffer(log *slog.Logger, offerPublisher OfferPublisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.offers.NewPublishOffer"
		log := log.With(slog.String("op", op))

		offerId := chi.URLParam(r, "offerId")
		if offerId == "" {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The offer id is invalid"))
			return
		}
		username := r.URL.Query().Get("username")
		if username == "" {
			render.Status(r, 401)
			render.JSON(w, r, errors.NewHttpError("The Username is empty"))
			return
		}

		if _, err := offerPublisher.FetchUser(username); err != nil {
			render.Status(r, 401)
			render.JSON(w, r, errors.NewHttpError("unknown user"))
			return
		}

		off, err := offerPublisher.GetOffer(offerId)
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

		resp, err := offerPublisher.UpdateOfferStatus(offerId, offer.StatusDraft, offer.StatusPublished)
		if err != nil {
			if serrors.Is(err, postgres.ErrConflict) {
				render.Status(r, 409)
				render.JSON(w, r, errors.NewHttpError("offer is not in draft"))
				return
			}
			log.Error("failed to publish offer", slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, resp)
	}
}

func parseNullRate(raw string) (decimal.NullDecimal, error) {
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	if !d.IsPositive() {
		return decimal.NullDecimal{}, serrors.New("rate must be positive")
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
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

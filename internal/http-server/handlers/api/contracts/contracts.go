package contracts

import (
	"context"
	"log/slog"
	"net/http"
	"student_market/internal/http-server/handlers/api/httperr"
	"student_market/internal/lib/errors"
	"student_market/internal/models/contract"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

type ContractEnsurer interface {
	EnsureContractForApplication(ctx context.Context, caller, applicationId string) (contract.Contract, error)
}

type SummaryReader interface {
	Summary(ctx context.Context, caller, contractId string) (contract.Summary, error)
}

type MilestoneAdder interface {
	AddMilestone(ctx context.Context, caller, contractId, title string, amount decimal.Decimal) (contract.Milestone, error)
}

type MilestoneFunder interface {
	FundMilestone(ctx context.Context, caller, milestoneId string) (contract.Milestone, error)
}

type MilestoneDeliverer interface {
	DeliverMilestone(ctx context.Context, caller, milestoneId string) (contract.Milestone, error)
}

type MilestoneAccepter interface {
	AcceptMilestone(ctx context.Context, caller, milestoneId string) (contract.Milestone, error)
}

// NewGetContract resolves the contract for an application, creating it
// idempotently if the application is accepted and none exists yet.
func NewGetContract(log *slog.Logger, ensurer ContractEnsurer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.contracts.NewGetContract"
		log := log.With(slog.String("op", op))

		username, ok := requireUsername(w, r)
		if !ok {
			return
		}
		applicationId := chi.URLParam(r, "applicationId")
		if applicationId == "" {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The application id is invalid"))
			return
		}

		resp, err := ensurer.EnsureContractForApplication(r.Context(), username, applicationId)
		if err != nil {
			log.Error("failed to resolve contract", slog.String("applicationId", applicationId), slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, resp)
	}
}

func NewGetSummary(log *slog.Logger, reader SummaryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.contracts.NewGetSummary"
		log := log.With(slog.String("op", op))

		username, ok := requireUsername(w, r)
		if !ok {
			return
		}
		contractId := chi.URLParam(r, "contractId")
		if contractId == "" {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The contract id is invalid"))
			return
		}

		resp, err := reader.Summary(r.Context(), username, contractId)
		if err != nil {
			log.Error("failed to build summary", slog.String("contractId", contractId), slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, resp)
	}
}

func NewPostMilestone(log *slog.Logger, adder MilestoneAdder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.contracts.NewPostMilestone"
		log := log.With(slog.String("op", op))

		username, ok := requireUsername(w, r)
		if !ok {
			return
		}
		contractId := chi.URLParam(r, "contractId")
		if contractId == "" {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The contract id is invalid"))
			return
		}

		var req contract.AddMilestoneRequest
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

		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("amount must be a number"))
			return
		}

		resp, err := adder.AddMilestone(r.Context(), username, contractId, req.Title, amount)
		if err != nil {
			log.Error("failed to add milestone", slog.String("contractId", contractId), slog.String("error", err.Error()))
			httperr.Render(w, r, err)
			return
		}

		render.JSON(w, r, resp)
	}
}

func NewFundMilestone(log *slog.Logger, funder MilestoneFunder) http.HandlerFunc {
	return milestoneTransition(log, "handlers.api.contracts.NewFundMilestone",
		func(ctx context.Context, caller, milestoneId string) (contract.Milestone, error) {
			return funder.FundMilestone(ctx, caller, milestoneId)
		})
}

func NewDeliverMilestone(log *slog.Logger, deliverer MilestoneDeliverer) http.HandlerFunc {
	return milestoneTransition(log, "handlers.api.contracts.NewDeliverMilestone",
		func(ctx context.Context, caller, milestoneId string) (contract.Milestone, error) {
			return deliverer.DeliverMilestone(ctx, caller, milestoneId)
		})
}

func NewAcceptMilestone(log *slog.Logger, accepter MilestoneAccepter) http.HandlerFunc {
	return milestoneTransition(log, "handlers.api.contracts.NewAcceptMilestone",
		func(ctx context.Context, caller, milestoneId string) (contract.Milestone, error) {
			return accepter.AcceptMilestone(ctx, caller, milestoneId)
		})
}

func milestoneTransition(log *slog.Logger, op string, invoke func(ctx context.Context, caller, milestoneId string) (contract.Milestone, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := log.With(slog.String("op", op))

		username, ok := requireUsername(w, r)
		if !ok {
			return
		}
		milestoneId := chi.URLParam(r, "milestoneId")
		if milestoneId == "" {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The milestone id is invalid"))
			return
		}

		resp, err := invoke(r.Context(), username, milestoneId)
		if err != nil {
			log.Error("milestone transition failed", slog.String("milestoneId", milestoneId), slog.String("error", err.Error()))
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

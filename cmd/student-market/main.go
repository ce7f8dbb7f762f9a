package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"student_market/internal/app"
	"student_market/internal/http-server/handlers/api/applications"
	"student_market/internal/http-server/handlers/api/contracts"
	"student_market/internal/http-server/handlers/api/conversations"
	"student_market/internal/http-server/handlers/api/notifications"
	"student_market/internal/http-server/handlers/api/offers"
	"student_market/internal/http-server/handlers/api/ping"
	"student_market/internal/http-server/handlers/api/users"
	"student_market/internal/storage/postgres"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
)

func main() {

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	err := godotenv.Load()
	if err != nil {
		log.Error("Failed to load .env", slog.Attr{Key: "error", Value: slog.StringValue(err.Error())})
	}

	connStr := os.Getenv("POSTGRES_CONN")
	storage, err := postgres.New(connStr)
	if err != nil {
		log.Error("Failed to connect to postgresql", slog.Attr{Key: "error", Value: slog.StringValue(err.Error())})
		os.Exit(1)
	}

	autoAcceptWindow := app.DefaultAutoAcceptWindow
	if raw := os.Getenv("AUTO_ACCEPT_WINDOW"); raw != "" {
		autoAcceptWindow, err = time.ParseDuration(raw)
		if err != nil {
			log.Error("Invalid AUTO_ACCEPT_WINDOW", slog.Attr{Key: "error", Value: slog.StringValue(err.Error())})
			os.Exit(1)
		}
	}

	notifier := app.NewInboxNotifier(storage, log)
	bridge := app.NewChatBridge(storage, log)
	escrow := app.NewEscrowService(storage, notifier, log, autoAcceptWindow)
	negotiation := app.NewNegotiationService(storage, escrow, bridge, notifier, log)

	router := chi.NewRouter()

	router.Route("/api", func(r chi.Router) {
		r.Get("/ping", ping.New(log))
		r.Post("/users/new", users.NewRegisterUser(log, storage))
		r.Route("/offers", func(r chi.Router) {
			r.Post("/new", offers.NewPostOffer(log, storage))
			r.Get("/my", offers.NewGetMyOffers(log, storage))
			r.Get("/{offerId}", offers.NewGetOffer(log, storage))
			r.Put("/{offerId}/publish", offers.NewPublishOffer(log, storage))
			r.Get("/{offerId}/applications", applications.NewGetOfferApplications(log, storage))
		})
		r.Route("/applications", func(r chi.Router) {
			r.Post("/new", applications.NewPostApplication(log, negotiation))
			r.Get("/my", applications.NewGetMyApplications(log, storage))
			r.Get("/{applicationId}", applications.NewGetApplication(log, negotiation))
			r.Put("/{applicationId}/accept", applications.NewAcceptProposal(log, negotiation))
			r.Put("/{applicationId}/counter", applications.NewCounterOffer(log, negotiation))
			r.Put("/{applicationId}/accept_counter", applications.NewAcceptCounter(log, negotiation))
			r.Put("/{applicationId}/propose", applications.NewProposeRate(log, negotiation))
			r.Put("/{applicationId}/reject", applications.NewReject(log, negotiation))
			r.Put("/{applicationId}/withdraw", applications.NewWithdraw(log, negotiation))
			r.Put("/{applicationId}/cancel", applications.NewCancel(log, negotiation))
			r.Get("/{applicationId}/contract", contracts.NewGetContract(log, escrow))
		})
		r.Route("/contracts", func(r chi.Router) {
			r.Get("/{contractId}/summary", contracts.NewGetSummary(log, escrow))
			r.Post("/{contractId}/milestones/new", contracts.NewPostMilestone(log, escrow))
		})
		r.Route("/milestones", func(r chi.Router) {
			r.Put("/{milestoneId}/fund", contracts.NewFundMilestone(log, escrow))
			r.Put("/{milestoneId}/deliver", contracts.NewDeliverMilestone(log, escrow))
			r.Put("/{milestoneId}/accept", contracts.NewAcceptMilestone(log, escrow))
		})
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/{applicationId}", conversations.NewGetConversation(log, storage))
			r.Post("/{applicationId}/messages/new", conversations.NewPostMessage(log, storage))
		})
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/my", notifications.NewGetMyNotifications(log, storage))
			r.Put("/{notificationId}/read", notifications.NewMarkRead(log, storage))
		})
	})

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Error("failed to start the server")
		}
	}()

	log.Info("starting server", slog.String("addr", addr))
	<-done
	log.Info("server stopped")
}

package router

import (
	"net/http"

	"github.com/tasktoearn/backend/internal/admin"
	"github.com/tasktoearn/backend/internal/auth"
	"github.com/tasktoearn/backend/internal/catalog"
	"github.com/tasktoearn/backend/internal/ledger"
	"github.com/tasktoearn/backend/internal/middleware"
	"github.com/tasktoearn/backend/internal/progress"
	"github.com/tasktoearn/backend/internal/withdrawal"
)

// Handlers bundles the per-feature handlers the router mounts.
type Handlers struct {
	Auth       *auth.Handler
	Catalog    *catalog.Handler
	Progress   *progress.Handler
	Ledger     *ledger.Handler
	Withdrawal *withdrawal.Handler
	Admin      *admin.Handler
}

// New returns an http.Handler serving the API under /api/v1. Routes past
// /auth require a valid bearer token; /admin additionally requires the
// admin role.
func New(h Handlers, authMW func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc("GET "+base+"/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("POST "+base+"/auth/register", h.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", h.Auth.Login)

	user := http.NewServeMux()
	user.HandleFunc("GET "+base+"/me", h.Auth.Me)
	user.HandleFunc("GET "+base+"/tasks", h.Catalog.ListTasks)
	user.HandleFunc("POST "+base+"/tasks/{id}/start", h.Progress.Start)
	user.HandleFunc("POST "+base+"/tasks/{id}/complete", h.Progress.Complete)
	user.HandleFunc("POST "+base+"/tasks/{id}/fail", h.Progress.Fail)
	user.HandleFunc("POST "+base+"/tasks/{id}/proof", h.Progress.SubmitProof)
	user.HandleFunc("GET "+base+"/progress", h.Progress.ListMine)
	user.HandleFunc("GET "+base+"/ledger", h.Ledger.ListMine)
	user.HandleFunc("POST "+base+"/withdrawals", h.Withdrawal.Create)
	user.HandleFunc("GET "+base+"/withdrawals", h.Withdrawal.ListMine)
	mux.Handle(base+"/me", authMW(user))
	mux.Handle(base+"/tasks", authMW(user))
	mux.Handle(base+"/tasks/", authMW(user))
	mux.Handle(base+"/progress", authMW(user))
	mux.Handle(base+"/ledger", authMW(user))
	mux.Handle(base+"/withdrawals", authMW(user))

	adm := http.NewServeMux()
	adm.HandleFunc("GET "+base+"/admin/tasks", h.Admin.ListTasks)
	adm.HandleFunc("POST "+base+"/admin/tasks", h.Admin.CreateTask)
	adm.HandleFunc("PATCH "+base+"/admin/tasks/{id}", h.Admin.UpdateTask)
	adm.HandleFunc("POST "+base+"/admin/tasks/{id}/active", h.Admin.SetTaskActive)
	adm.HandleFunc("GET "+base+"/admin/proofs", h.Admin.ListProofs)
	adm.HandleFunc("GET "+base+"/admin/proofs/{id}/image", h.Admin.GetProofImage)
	adm.HandleFunc("POST "+base+"/admin/proofs/{id}/review", h.Admin.ReviewProof)
	adm.HandleFunc("GET "+base+"/admin/withdrawals", h.Admin.ListWithdrawals)
	adm.HandleFunc("POST "+base+"/admin/withdrawals/{id}/resolve", h.Admin.ResolveWithdrawal)
	adm.HandleFunc("GET "+base+"/admin/users", h.Admin.ListUsers)
	adm.HandleFunc("POST "+base+"/admin/users/{id}/ban", h.Admin.BanUser)
	adm.HandleFunc("GET "+base+"/admin/users/{id}/ledger-check", h.Admin.VerifyLedger)
	mux.Handle(base+"/admin/", authMW(middleware.AdminOnly(adm)))

	return mux
}

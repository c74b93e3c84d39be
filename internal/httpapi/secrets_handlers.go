package httpapi

import (
	"net/http"
	"strings"
	"sync/atomic"

	"mapsharvest-engine/internal/secrets"
)

type SecretsHandler struct {
	CfgVal *atomic.Value // stores config.Config
}

// SetPostgresPassword stores the password for the configured Postgres DSN in
// the OS keychain. An empty password removes it.
func (h SecretsHandler) SetPostgresPassword(w http.ResponseWriter, r *http.Request) {
	var req setPasswordReq
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	account := secrets.PostgresKeyringAccount(loadConfig(h.CfgVal).Storage)
	if account == "" {
		WriteError(w, r, http.StatusBadRequest, "no_account", "no postgres DSN or keyring account configured")
		return
	}

	var err error
	if strings.TrimSpace(req.Password) == "" {
		err = secrets.DeletePostgresPassword(account)
	} else {
		err = secrets.SetPostgresPassword(account, req.Password)
	}
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, "keyring_failed", "failed to store password: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

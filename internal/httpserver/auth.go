package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/backend"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/ldap"
)

const (
	resultAllow = "allow"
	resultDeny  = "deny"
)

type authUserRequest struct {
	Username string  `json:"username"`
	Password *string `json:"password,omitempty"`
	Vhost    string  `json:"vhost,omitempty"`
}

type authUserResponse struct {
	Result string   `json:"result"`
	UserDN string   `json:"user_dn,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	Error  string   `json:"error,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

type checkRequest struct {
	Username string `json:"username"`
	// Password is optional; it lets other_bind = as_user rebind for the
	// check when the broker forwards it.
	Password string `json:"password,omitempty"`
	// UserDN is the DN a previous /auth/user response returned.
	UserDN     string            `json:"user_dn,omitempty"`
	Vhost      string            `json:"vhost,omitempty"`
	Resource   string            `json:"resource,omitempty"`
	Name       string            `json:"name,omitempty"`
	Permission string            `json:"permission,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
}

type checkResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// handleAuthUser serves authentication. A request without a password field
// is the passwordless flow; authorize-only callers use it to project out
// the DN and tag set.
func (a *API) handleAuthUser(w http.ResponseWriter, r *http.Request) {
	var req authUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w)
		return
	}

	props := backend.AuthProps{Vhost: req.Vhost}
	if req.Password != nil {
		props.Password = *req.Password
		props.HasPassword = true
	}

	user, err := a.backend.Authenticate(req.Username, props)
	if err != nil {
		var refused *ldap.Refused
		if errors.As(err, &refused) {
			writeJSON(w, http.StatusOK, authUserResponse{
				Result: resultDeny,
				Reason: refused.Reason,
			})
			return
		}
		a.log.Warn("authentication error",
			zap.String("username", req.Username), zap.String("kind", ldap.Kind(err)))
		writeJSON(w, http.StatusOK, authUserResponse{
			Result: resultDeny,
			Error:  ldap.Kind(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, authUserResponse{
		Result: resultAllow,
		UserDN: user.DN,
		Tags:   user.Tags,
	})
}

func (a *API) handleAuthVhost(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w)
		return
	}

	user := backend.Principal(req.Username, req.UserDN, req.Password)
	allowed, err := a.backend.CheckVhostAccess(user, req.Vhost)
	a.writeCheck(w, allowed, err)
}

func (a *API) handleAuthResource(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w)
		return
	}

	user := backend.Principal(req.Username, req.UserDN, req.Password)
	resource := backend.Resource{VirtualHost: req.Vhost, Kind: req.Resource, Name: req.Name}
	allowed, err := a.backend.CheckResourceAccess(user, resource, req.Permission)
	a.writeCheck(w, allowed, err)
}

func (a *API) handleAuthTopic(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w)
		return
	}

	user := backend.Principal(req.Username, req.UserDN, req.Password)
	resource := backend.Resource{VirtualHost: req.Vhost, Kind: req.Resource, Name: req.Name}
	allowed, err := a.backend.CheckTopicAccess(user, resource, req.Permission, req.Context)
	a.writeCheck(w, allowed, err)
}

// writeCheck maps a check outcome onto the wire: any non-true result is a
// deny, with the error kind attached when one occurred.
func (a *API) writeCheck(w http.ResponseWriter, allowed bool, err error) {
	if err != nil {
		a.log.Warn("authorization check error", zap.String("kind", ldap.Kind(err)))
		writeJSON(w, http.StatusOK, checkResponse{Result: resultDeny, Error: ldap.Kind(err)})
		return
	}
	result := resultDeny
	if allowed {
		result = resultAllow
	}
	writeJSON(w, http.StatusOK, checkResponse{Result: result})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeBadRequest(w http.ResponseWriter) {
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid request body"})
}

// admin.go -- operator-only secret rotation, out of the request path.
package deals

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/sponsoai/dealdesk/internal/auth"
)

// HeaderAdminToken authenticates the operator on the rotation endpoint.
const HeaderAdminToken = "x-admin-token"

// RotateSecret handles POST /internal/addon-secret/rotate.
// Swaps the shared secret pair atomically: the old current moves into the
// grace slot and keeps verifying until the next rotation evicts it.
// The endpoint plays dead (404) when no admin token is configured.
func (h *DealHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	if h.AdminToken == "" {
		auth.NotFound(w, "not found")
		return
	}

	provided := r.Header.Get(HeaderAdminToken)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.AdminToken)) != 1 {
		logWarn(r, "secret rotation attempted with bad admin token")
		auth.Unauthorized(w, r, "unauthorized")
		return
	}

	var in struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		auth.BadRequest(w, r, "error decoding request body")
		return
	}

	if err := h.Secrets.Rotate(in.Secret); err != nil {
		auth.BadRequest(w, r, err.Error())
		return
	}

	logInfo(r, "addon secret rotated")
	auth.OK(w, "secret rotated")
}

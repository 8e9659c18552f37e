package http

import (
	"io"
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/hagall-spatial/spatial"
	"github.com/segmentio/encoding/json"
)

// DespawnRequest is the body of a despawn request.
type DespawnRequest struct {
	AgentID int `json:"agent_id"`
}

// HandleDespawn removes the agent named in the request body with the given
// function. It responds with 404 when the agent does not exist.
func HandleDespawn(despawn func(id int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		b, err := io.ReadAll(r.Body)
		if err != nil {
			logs.Error(errors.New("reading body failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req DespawnRequest
		if err := json.Unmarshal(b, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if err := despawn(req.AgentID); err != nil {
			if errors.IsType(err, spatial.ErrTypeNotFound) {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			logs.Error(err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		logs.WithTag("agent_id", req.AgentID).Info("agent despawned")
		w.WriteHeader(http.StatusOK)
	}
}

package http

import (
	"net/http"

	"github.com/aukilabs/eihwaz/models"
	"github.com/aukilabs/eihwaz/octree"
	"github.com/aukilabs/go-tooling/pkg/errors"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/segmentio/encoding/json"
)

// SceneInfo describes a scene hosted by the server.
type SceneInfo struct {
	ID               string            `json:"id"`
	UUID             string            `json:"uuid"`
	AppKey           string            `json:"app_key,omitempty"`
	ParticipantCount int               `json:"participant_count"`
	EntityCount      int               `json:"entity_count"`
	Octree           *octree.DebugInfo `json:"octree,omitempty"`
}

func newSceneInfo(store *models.SceneStore, s *models.Scene) SceneInfo {
	return SceneInfo{
		ID:               store.GlobalSceneID(s.ID),
		UUID:             s.UUID,
		AppKey:           s.AppKey,
		ParticipantCount: s.ParticipantCount(),
		EntityCount:      s.EntityCount(),
	}
}

// HandleScenes lists the scenes of the given store.
func HandleScenes(store *models.SceneStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scenes := store.List()

		res := make([]SceneInfo, len(scenes))
		for i, s := range scenes {
			res[i] = newSceneInfo(store, s)
		}

		writeJSON(w, res)
	}
}

// HandleSceneDebug describes the scene with the global id given in the id
// query parameter, including the layout of its octree.
func HandleSceneDebug(store *models.SceneStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			httpcmn.BadRequest(w, httpcmn.ErrBadRequest)
			return
		}

		scene, ok := store.GetByGlobalID(id)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		res := newSceneInfo(store, scene)
		debugInfo := scene.OctreeDebugInfo()
		res.Octree = &debugInfo

		writeJSON(w, res)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		httpcmn.InternalServerError(w, errors.New("encoding response failed").Wrap(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go-canvas/internal/design"
)

// ErrSaveConflict is returned when a save loses the version race; the caller
// should sync and reconcile rather than retry blindly. Local state is never
// rolled back because of it.
var ErrSaveConflict = errors.New("save rejected: version conflict")

// Syncer is the client of the persistence boundary: the sync endpoint
// consulted on load/reconnect and the save endpoint used by autosave.
type Syncer struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewSyncer(baseURL, token string) *Syncer {
	return &Syncer{
		baseURL: baseURL,
		token:   token,
		client:  http.DefaultClient,
	}
}

// FetchSync asks the server whether the client has drifted. A nil
// clientVersion requests an unconditional full sync.
func (s *Syncer) FetchSync(ctx context.Context, designID string, clientVersion *int64) (*design.SyncResponse, error) {
	url := s.baseURL + "/api/designs/" + designID + "/sync"
	if clientVersion != nil {
		url += "?clientVersion=" + strconv.FormatInt(*clientVersion, 10)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sync %s: %w", designID, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sync %s: status %d", designID, res.StatusCode)
	}

	var out design.SyncResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("sync %s: decode: %w", designID, err)
	}
	return &out, nil
}

// Save persists the full element array. A version conflict comes back as
// ErrSaveConflict; other failures are recoverable errors the UI can retry.
func (s *Syncer) Save(ctx context.Context, designID string, req *design.SaveRequest) (*design.SaveResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut,
		s.baseURL+"/api/designs/"+designID+"/save", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.token)
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", designID, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		var out design.SaveResponse
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("save %s: decode: %w", designID, err)
		}
		return &out, nil
	case http.StatusConflict:
		return nil, ErrSaveConflict
	default:
		return nil, fmt.Errorf("save %s: status %d", designID, res.StatusCode)
	}
}

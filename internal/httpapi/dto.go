package httpapi

import (
	"encoding/json"
	"time"

	"github.com/petrijr/docflow/pkg/api"
)

type startRequest struct {
	Title         string    `json:"title" binding:"required"`
	CreatedDate   time.Time `json:"createdDate" binding:"required"`
	Creator       string    `json:"creator" binding:"required"`
	ApplicationID string    `json:"applicationId" binding:"required"`
}

func (r startRequest) properties() api.DocumentProperties {
	return api.DocumentProperties{
		Title:         r.Title,
		CreatedDate:   r.CreatedDate,
		Creator:       r.Creator,
		ApplicationID: r.ApplicationID,
	}
}

// checkStatus is returned when an instance is started. It tells the caller
// where to poll and where to post events.
type checkStatus struct {
	ID                string `json:"id"`
	StatusQueryGetURI string `json:"statusQueryGetUri"`
	SendEventPostURI  string `json:"sendEventPostUri"`
	HistoryGetURI     string `json:"historyGetUri"`
}

func newCheckStatus(base, id string) checkStatus {
	instance := base + "/instances/" + id
	return checkStatus{
		ID:                id,
		StatusQueryGetURI: instance,
		SendEventPostURI:  instance + "/events/{eventName}",
		HistoryGetURI:     instance + "/history",
	}
}

type instanceResponse struct {
	InstanceID      string                 `json:"instanceId"`
	RuntimeStatus   api.RuntimeState       `json:"runtimeStatus"`
	CustomStatus    string                 `json:"customStatus"`
	Input           api.DocumentProperties `json:"input"`
	Output          string                 `json:"output,omitempty"`
	Failure         string                 `json:"failure,omitempty"`
	WaitingFor      []api.SignalName       `json:"waitingFor,omitempty"`
	CreatedTime     time.Time              `json:"createdTime"`
	LastUpdatedTime time.Time              `json:"lastUpdatedTime"`
}

func newInstanceResponse(inst *api.Instance) instanceResponse {
	return instanceResponse{
		InstanceID:      inst.ID,
		RuntimeStatus:   inst.State,
		CustomStatus:    inst.Status,
		Input:           inst.Input,
		Output:          inst.Output,
		Failure:         inst.Failure,
		WaitingFor:      inst.WaitingFor,
		CreatedTime:     inst.CreatedAt,
		LastUpdatedTime: inst.UpdatedAt,
	}
}

type signalResponse struct {
	Delivery api.DeliveryStatus `json:"delivery"`
	Instance instanceResponse   `json:"instance"`
}

type historyEntry struct {
	Sequence   int64           `json:"sequence"`
	Kind       api.EntryKind   `json:"kind"`
	Name       string          `json:"name,omitempty"`
	RecordedAt time.Time       `json:"recordedAt"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type listQuery struct {
	Status       []string `form:"status"`
	CreatedAfter string   `form:"createdAfter"`
	PageSize     int      `form:"pageSize" binding:"omitempty,min=1"`
	PageToken    string   `form:"pageToken"`
}

type listResponse struct {
	Instances     []api.InstanceSummary `json:"instances"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

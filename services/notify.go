package services

import (
	"encoding/json"

	"blogview/logx"
)

// StateMessage is what /ws subscribers receive.
type StateMessage struct {
	Event string    `json:"event"`
	State ViewState `json:"state"`
}

// EncodeState builds the websocket payload for state.
func EncodeState(state ViewState) ([]byte, error) {
	return json.Marshal(StateMessage{Event: "state", State: state})
}

// PushState queues state for every websocket of sessionID. It never blocks on
// a socket, so it is safe as SessionManagerOptions.OnChange.
func PushState(sessionID string, state ViewState) {
	if GlobalWSConnManager.Count(sessionID) == 0 {
		return
	}
	data, err := EncodeState(state)
	if err != nil {
		logx.Errorf("session %s: encode state: %v", sessionID, err)
		return
	}
	GlobalWSConnManager.Send(sessionID, data)
}

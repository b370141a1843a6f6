// README: Worker session passed explicitly into every engine call.
package dispatch

import (
	"errors"

	"tripengine/internal/modules/matching"
	"tripengine/internal/types"
)

type Worker struct {
	ID         types.ID            `json:"id"`
	Capability matching.Capability `json:"capability"`
}

type Session struct {
	Worker Worker
}

var ErrNoSession = errors.New("missing worker session")

func NewSession(workerID, capability string) (Session, error) {
	if workerID == "" {
		return Session{}, ErrNoSession
	}
	c, err := matching.ParseCapability(capability)
	if err != nil {
		return Session{}, err
	}
	return Session{Worker: Worker{ID: types.ID(workerID), Capability: c}}, nil
}

package commands

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix/event"

	"github.com/mpavlenko/gadfly/common/version"
)

// Controller is the per-conversation switch the commands flip. Implemented by
// the engine.
type Controller interface {
	Enable(convID string)
	Disable(convID string)
	Status(convID string) bool
}

// AdminChecker reports whether a user may operate the controller in a room.
// Implemented by the Matrix client via room power levels.
type AdminChecker interface {
	IsAdmin(ctx context.Context, roomID, userID string) (bool, error)
}

// Handlers implements the /gadfly command set.
type Handlers struct {
	controller Controller
	admin      AdminChecker
}

// NewHandlers creates the command handlers.
func NewHandlers(controller Controller, admin AdminChecker) *Handlers {
	return &Handlers{controller: controller, admin: admin}
}

// HandleHelp lists the available commands. Not admin-gated.
func (h *Handlers) HandleHelp(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	return "Commands: on (enable here), off (disable here), status, version, help. " +
		"on/off require moderator power in the room.", nil
}

// HandleVersion reports the build version. Not admin-gated.
func (h *Handlers) HandleVersion(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	return "gadfly " + version.Info(), nil
}

// HandleStatus reports whether the persona is active in the room. Readable by
// anyone; status is not sensitive.
func (h *Handlers) HandleStatus(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	if h.controller.Status(evt.RoomID.String()) {
		return "I'm on.", nil
	}
	return "I'm off.", nil
}

// HandleOn enables the persona in the room.
func (h *Handlers) HandleOn(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	if err := h.requireAdmin(ctx, evt); err != nil {
		return "", err
	}
	h.controller.Enable(evt.RoomID.String())
	return "Back on.", nil
}

// HandleOff disables the persona in the room.
func (h *Handlers) HandleOff(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	if err := h.requireAdmin(ctx, evt); err != nil {
		return "", err
	}
	h.controller.Disable(evt.RoomID.String())
	return "Going quiet.", nil
}

func (h *Handlers) requireAdmin(ctx context.Context, evt *event.Event) error {
	ok, err := h.admin.IsAdmin(ctx, evt.RoomID.String(), evt.Sender.String())
	if err != nil {
		return fmt.Errorf("could not check permissions: %w", err)
	}
	if !ok {
		return fmt.Errorf("moderator power required")
	}
	return nil
}

package notification

// PlayerOutput drives playback by broadcasting player commands to every
// connected client. The server holds no audio device itself; clients that
// own an audio element execute the commands.
type PlayerOutput struct {
	manager *Manager
}

// NewPlayerOutput creates an output backed by the given manager.
func NewPlayerOutput(manager *Manager) *PlayerOutput {
	return &PlayerOutput{manager: manager}
}

// Load tells clients to start streaming the given URL from position zero.
func (o *PlayerOutput) Load(url string) error {
	o.manager.Broadcast(&Notification{
		Type:   TypePlayerLoad,
		Player: &PlayerPayload{URL: url},
	})
	return nil
}

// SetVolume tells clients to set their output volume.
func (o *PlayerOutput) SetVolume(v float64) error {
	o.manager.Broadcast(&Notification{
		Type:   TypePlayerVolume,
		Player: &PlayerPayload{Volume: &v},
	})
	return nil
}

// Pause tells clients to pause without unloading the stream.
func (o *PlayerOutput) Pause() error {
	o.manager.Broadcast(&Notification{Type: TypePlayerPause})
	return nil
}

// Resume tells clients to resume from the paused position.
func (o *PlayerOutput) Resume() error {
	o.manager.Broadcast(&Notification{Type: TypePlayerResume})
	return nil
}

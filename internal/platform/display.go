package platform

// KeepScreenOnEvent is emitted to the web view when the keep-awake directive changes.
const KeepScreenOnEvent = "limetuna:keepScreenOn"

// Emitter publishes a named event with a payload to the UI.
type Emitter func(name string, data any)

// EventDisplay forwards keep-awake directives to the web view, which holds a
// screen wake lock while on is true.
type EventDisplay struct {
	emit Emitter
}

func NewEventDisplay(emit Emitter) *EventDisplay {
	return &EventDisplay{emit: emit}
}

func (d *EventDisplay) SetKeepAwake(on bool) error {
	if d.emit == nil {
		return nil
	}
	d.emit(KeepScreenOnEvent, map[string]any{"on": on})
	return nil
}

package link

// DownlinkCapacity is the largest downlink frame the router accepts.
const DownlinkCapacity = 256

const commandSize = 1

// DownlinkFrame is only valid for the duration of the receive handler.
type DownlinkFrame struct {
	Port    int
	Payload []byte
}

// OnReceive reads the waiting frame and routes it by port. Frames that
// do not exactly match the size expected on their port are discarded.
func (l *Link) OnReceive() {
	if !l.stack.ParsePacket() {
		return
	}

	size := l.stack.Read(l.downlinkBuffer[:])
	if size <= 0 {
		return
	}

	if size > len(l.downlinkBuffer) {
		l.discard("oversize", l.stack.RemotePort(), size)
		return
	}

	l.route(DownlinkFrame{
		Port:    l.stack.RemotePort(),
		Payload: l.downlinkBuffer[:size],
	})
}

func (l *Link) route(frame DownlinkFrame) {
	switch {
	case l.settings != nil && frame.Port == l.settings.PacketPort():
		if len(frame.Payload) != l.settings.RecordSize() {
			l.discard("settings_size", frame.Port, len(frame.Payload))
			return
		}

		record := make([]byte, len(frame.Payload))
		copy(record, frame.Payload)

		downlinkCounter("settings").Inc()
		l.logger.Info("Settings downlink", "port", frame.Port, "size", len(record))
		l.settings.ApplyDownlink(record)

	case l.commands != nil && frame.Port == l.commands.PacketPort():
		if len(frame.Payload) != commandSize {
			l.discard("command_size", frame.Port, len(frame.Payload))
			return
		}

		downlinkCounter("command").Inc()
		l.logger.Info("Command downlink", "port", frame.Port, "command", frame.Payload[0])
		l.commands.Receive(frame.Payload[0])

	default:
		l.discard("unknown_port", frame.Port, len(frame.Payload))
	}
}

func (l *Link) discard(reason string, port, size int) {
	downlinkCounter(reason).Inc()
	l.logger.Debug("Downlink discarded", "reason", reason, "port", port, "size", size)
}
